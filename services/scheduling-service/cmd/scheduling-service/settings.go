package main

import (
	"fmt"
	"time"

	"github.com/clinicdash/clinicsched/libs/config"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/holidays"
)

type settings struct {
	Service   string
	Port      string
	GRPCPort  string
	LogLevel  string
	Timezone  string
	BodyLimit int64

	ClinicAPIURL     string
	ClinicAPITimeout time.Duration
	ServiceToken     string
	LocalSlots       bool
	SlotMinutes      int

	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	KafkaBrokers  string
	KafkaGroupID  string
	ScheduleTopic string

	JWTSecret  string
	JWKSURL    string
	RateLimit  int
	CORSOrigin []string

	HolidayCron    string
	HolidayDoctors []string
}

func loadSettings() (settings, error) {
	s := settings{
		Service:        config.String("SERVICE_NAME", "scheduling-service"),
		LogLevel:       config.String("LOG_LEVEL", "info"),
		Timezone:       config.String("CLINIC_TIMEZONE", ""),
		ServiceToken:   config.String("SERVICE_TOKEN", ""),
		RedisURL:       config.String("REDIS_URL", ""),
		KafkaBrokers:   config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:   config.String("KAFKA_GROUP_ID", "scheduling-service"),
		ScheduleTopic:  config.String("KAFKA_SCHEDULE_TOPIC", ""),
		JWTSecret:      config.String("JWT_SECRET", ""),
		JWKSURL:        config.String("AUTH_JWKS_URL", ""),
		CORSOrigin:     config.List("CORS_ALLOWED_ORIGINS"),
		HolidayCron:    config.String("HOLIDAY_SYNC_CRON", holidays.DefaultSpec),
		HolidayDoctors: config.List("HOLIDAY_SYNC_DOCTOR_IDS"),
	}

	var err error
	if s.Port, err = config.Port("PORT", "8090"); err != nil {
		return s, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9095"); err != nil {
		return s, err
	}
	if s.ClinicAPIURL, err = config.RequiredString("CLINIC_API_URL"); err != nil {
		return s, err
	}
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return s, err
	}
	if s.ClinicAPITimeout, err = config.Duration("CLINIC_API_TIMEOUT", 10*time.Second); err != nil {
		return s, err
	}
	if s.CacheTTL, err = config.Duration("AVAILABILITY_CACHE_TTL", 30*time.Second); err != nil {
		return s, err
	}
	if s.SlotMinutes, err = config.Int("SLOT_MINUTES", 30); err != nil {
		return s, err
	}
	if s.LocalSlots, err = config.Bool("LOCAL_SLOTS", false); err != nil {
		return s, err
	}
	if s.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return s, err
	}
	limit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return s, err
	}
	s.BodyLimit = int64(limit)
	if err := holidays.ValidateSpec(s.HolidayCron); err != nil {
		return s, fmt.Errorf("HOLIDAY_SYNC_CRON: %w", err)
	}
	return s, nil
}
