// Package datasource reads price history and driver records from the
// relational store shared with the freight marketplace.
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kilianp07/freightmatch/core/logger"
	"github.com/kilianp07/freightmatch/core/model"
)

// Options configures the connection.
type Options struct {
	// Driver is "postgres" (lib/pq) or "pgx" (pgx stdlib).
	Driver          string
	DSN             string
	ConnectAttempts int
	RetryDelay      time.Duration
	MaxOpenConns    int
	QueryTimeout    time.Duration
	// Lazy keeps the pool when every connect check fails. The database is
	// then dialed again on each query until it comes back.
	Lazy bool
}

// Store implements source.Store on top of sqlx.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects and pings the database, retrying up to ConnectAttempts times
// with RetryDelay between attempts. With Lazy set, exhausting the attempts
// only logs a warning.
func Open(ctx context.Context, opts Options, log logger.Logger) (*Store, error) {
	log = logger.OrNop(log)
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 3
	}
	db, err := sqlx.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		log.Warnf("database ping %d/%d failed: %v", attempt, opts.ConnectAttempts, err)
		if attempt >= opts.ConnectAttempts {
			if opts.Lazy {
				log.Warnf("%s database unreachable, continuing without connection", opts.Driver)
				return New(db, opts.QueryTimeout), nil
			}
			_ = db.Close()
			return nil, fmt.Errorf("connect %s after %d attempts: %w", opts.Driver, attempt, err)
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}
	log.Infof("connected to %s database", opts.Driver)
	return New(db, opts.QueryTimeout), nil
}

// New wraps an existing connection. A zero timeout leaves queries bounded
// only by the caller's context.
func New(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) selectAll(ctx context.Context, dest any, query string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.db.SelectContext(ctx, dest, query)
}

type announcementRow struct {
	From  sql.NullString `db:"pick_up_address"`
	To    sql.NullString `db:"shipping_address"`
	Price sql.NullString `db:"price"`
}

// PriceRecords returns every announcement. Addresses are returned as stored;
// a missing or non-numeric price becomes 0.
func (s *Store) PriceRecords(ctx context.Context) ([]model.PriceRecord, error) {
	var rows []announcementRow
	err := s.selectAll(ctx, &rows, `
		SELECT pick_up_address, shipping_address, CAST(price AS TEXT) AS price
		FROM announcements`)
	if err != nil {
		return nil, fmt.Errorf("query announcements: %w", err)
	}
	out := make([]model.PriceRecord, 0, len(rows))
	for _, r := range rows {
		rec := model.PriceRecord{Origin: r.From.String, Destination: r.To.String}
		if p := parseNumber(r.Price); p != nil {
			rec.Price = *p
		}
		out = append(out, rec)
	}
	return out, nil
}

type locationRow struct {
	UserID    int64          `db:"user_id"`
	Latitude  sql.NullString `db:"latitude"`
	Longitude sql.NullString `db:"longitude"`
}

// DriverLocations returns the last known position of every driver.
func (s *Store) DriverLocations(ctx context.Context) ([]model.DriverLocation, error) {
	var rows []locationRow
	err := s.selectAll(ctx, &rows, `
		SELECT user_id, CAST(latitude AS TEXT) AS latitude, CAST(longitude AS TEXT) AS longitude
		FROM driver_locations`)
	if err != nil {
		return nil, fmt.Errorf("query driver_locations: %w", err)
	}
	out := make([]model.DriverLocation, len(rows))
	for i, r := range rows {
		out[i] = model.DriverLocation{
			DriverID:  r.UserID,
			Latitude:  parseNumber(r.Latitude),
			Longitude: parseNumber(r.Longitude),
		}
	}
	return out, nil
}

type vehicleRow struct {
	UserID int64          `db:"user_id"`
	Model  sql.NullString `db:"transport_model"`
	Weight sql.NullString `db:"transport_weight"`
	Volume sql.NullString `db:"transport_volume"`
}

// DriverVehicles returns the registered vehicle of every driver.
func (s *Store) DriverVehicles(ctx context.Context) ([]model.DriverVehicle, error) {
	var rows []vehicleRow
	err := s.selectAll(ctx, &rows, `
		SELECT user_id, transport_model,
			CAST(transport_weight AS TEXT) AS transport_weight,
			CAST(transport_volume AS TEXT) AS transport_volume
		FROM my_autos`)
	if err != nil {
		return nil, fmt.Errorf("query my_autos: %w", err)
	}
	out := make([]model.DriverVehicle, len(rows))
	for i, r := range rows {
		out[i] = model.DriverVehicle{
			DriverID:       r.UserID,
			Model:          r.Model.String,
			WeightCapacity: parseNumber(r.Weight),
			VolumeCapacity: parseNumber(r.Volume),
		}
	}
	return out, nil
}

type profileRow struct {
	ID       int64          `db:"id"`
	FullName sql.NullString `db:"fullname"`
	Phone    sql.NullString `db:"phone"`
	Status   sql.NullString `db:"status"`
}

// DriverProfiles returns the contact data of every user.
func (s *Store) DriverProfiles(ctx context.Context) ([]model.DriverProfile, error) {
	var rows []profileRow
	err := s.selectAll(ctx, &rows, `SELECT id, fullname, phone, CAST(status AS TEXT) AS status FROM users`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	out := make([]model.DriverProfile, len(rows))
	for i, r := range rows {
		out[i] = model.DriverProfile{
			DriverID: r.ID,
			FullName: r.FullName.String,
			Phone:    r.Phone.String,
			Status:   r.Status.String,
		}
	}
	return out, nil
}

// parseNumber returns nil for NULL, blank, non-numeric or non-finite text.
func parseNumber(ns sql.NullString) *float64 {
	if !ns.Valid {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(ns.String), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
