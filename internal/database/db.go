// Package database is the Postgres store for the platform's domain rows:
// events (shows), tickets and orders. Connection settings come from the
// SSM parameter tree the stack publishes under /lks/database/.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	_ "github.com/lib/pq"

	"github.com/notilmi/Serverless-CDK-LKS-Cloud-Computing-2023/internal/awsclients"
)

const parameterPrefix = "/lks/database/"

// Settings holds the connection parameters for the cluster.
type Settings struct {
	Endpoint string
	Username string
	Password string
	DBName   string
}

// LoadSettings resolves endpoint, username and dbname from SSM and the
// password from DB_PASSWORD (credentials are not stored in parameters).
func LoadSettings(ctx context.Context, client awsclients.SSMAPI) (Settings, error) {
	s := Settings{Password: os.Getenv("DB_PASSWORD")}

	for name, dst := range map[string]*string{
		"endpoint": &s.Endpoint,
		"username": &s.Username,
		"dbname":   &s.DBName,
	} {
		full := parameterPrefix + name
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{Name: &full})
		if err != nil {
			return s, fmt.Errorf("get parameter %s: %w", full, err)
		}
		if out.Parameter == nil || out.Parameter.Value == nil {
			return s, fmt.Errorf("parameter %s has no value", full)
		}
		*dst = *out.Parameter.Value
	}
	return s, nil
}

// Open connects to Postgres with the given settings.
func Open(ctx context.Context, s Settings) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=require",
		s.Endpoint, s.Username, s.Password, s.DBName)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the domain tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			venue      TEXT NOT NULL,
			starts_at  TIMESTAMPTZ NOT NULL,
			capacity   INTEGER NOT NULL,
			price      NUMERIC(10,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id                  TEXT PRIMARY KEY,
			customer_id         TEXT NOT NULL,
			event_id            TEXT,
			quantity            INTEGER NOT NULL,
			amount              NUMERIC(10,2) NOT NULL,
			status              TEXT NOT NULL,
			payment_status      TEXT NOT NULL DEFAULT 'UNPAID',
			fingerprint         TEXT NOT NULL,
			payment_fingerprint TEXT,
			proof_object_key    TEXT,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id         TEXT PRIMARY KEY,
			event_id   TEXT NOT NULL REFERENCES events(id),
			order_id   TEXT,
			seat       TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
