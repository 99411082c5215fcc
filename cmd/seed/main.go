package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Inaralmeida/smilink-sub001/internal/config"
	"github.com/Inaralmeida/smilink-sub001/internal/db"
	"github.com/Inaralmeida/smilink-sub001/internal/intake"
	"github.com/Inaralmeida/smilink-sub001/internal/logging"
)

const (
	professionalCount = 12
	patientCount      = 500
	batchSize         = 100
)

var specialties = []string{
	"Clínica Geral",
	"Ortodontia",
	"Endodontia",
	"Periodontia",
	"Implantodontia",
	"Odontopediatria",
	"Prótese Dentária",
	"Dentística",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolSettings{
		AppName:  "smilink-seed",
		TimeZone: cfg.ClinicTimezone,
	})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedProfessionals(ctx, pool, logger); err != nil {
		logger.Fatal("seed professionals", zap.Error(err))
	}
	if err := seedPatients(ctx, pool, logger); err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}

	logger.Info("seed complete")
}

func seedProfessionals(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < professionalCount; i++ {
		title := "Dr."
		if gofakeit.Gender() == "female" {
			title = "Dra."
		}
		name := fmt.Sprintf("%s %s %s", title, gofakeit.FirstName(), gofakeit.LastName())
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), name, spec)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("professionals seeded", zap.Int("count", professionalCount))
	return nil
}

// fakeRecord builds an intake record that passes validation, so seeded
// patients look like ones registered through the intake form.
func fakeRecord(now time.Time) intake.Record {
	birth := gofakeit.DateRange(now.AddDate(-90, 0, 0), now.AddDate(-1, 0, 0))
	r := intake.Record{
		FullName:     gofakeit.Name(),
		Email:        gofakeit.Email(),
		BirthDate:    birth.Format(intake.DateLayout),
		NationalID:   gofakeit.Numerify("###.###.###-##"),
		Phone:        gofakeit.Numerify("(##) 9####-####"),
		HasInsurance: gofakeit.Bool(),
		Address: intake.Address{
			PostalCode:   gofakeit.Numerify("#####-###"),
			Street:       gofakeit.Street(),
			Number:       gofakeit.StreetNumber(),
			Neighborhood: gofakeit.City(),
			City:         gofakeit.City(),
			State:        gofakeit.StateAbr(),
		},
	}
	if r.HasInsurance {
		r.Insurance = intake.Insurance{
			PlanName:     gofakeit.Company() + " Saúde",
			MemberNumber: gofakeit.Numerify("##########"),
		}
	}
	if intake.Age(birth, now) < 18 {
		r.Guardian = intake.Guardian{
			Name:         gofakeit.Name(),
			NationalID:   gofakeit.Numerify("###.###.###-##"),
			Relationship: gofakeit.RandomString([]string{"mãe", "pai", "avó", "tutor"}),
			Phone:        gofakeit.Numerify("(##) 9####-####"),
		}
	}
	return r
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	store := intake.NewPgStore(pool)
	now := time.Now()
	skipped := 0

	for offset := 0; offset < patientCount; offset += batchSize {
		end := min(offset+batchSize, patientCount)

		for i := offset; i < end; i++ {
			r, err := intake.Validate(fakeRecord(now), now)
			if err != nil {
				skipped++
				logger.Debug("generated record rejected", zap.Error(err))
				continue
			}
			if _, err := store.SavePatient(ctx, uuid.New(), r); err != nil {
				if errors.Is(err, intake.ErrDuplicatePatient) {
					skipped++
					continue
				}
				return err
			}
		}

		logger.Info("patients seeded", zap.Int("done", end), zap.Int("total", patientCount))
	}

	logger.Info("patients seeded", zap.Int("count", patientCount-skipped), zap.Int("skipped", skipped))
	return nil
}
