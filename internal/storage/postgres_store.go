package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/freight-matching/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

const shipmentColumns = `id, shipper_id, truck_owner_id, status, origin_address, destination_address,
	origin_lat, origin_lon, dest_lat, dest_lon, goods_description, goods_type, weight_kg,
	payment_amount, pickup_datetime, created_at, updated_at, accepted_at, picked_up_at, in_transit_at, delivered_at`

func (p *PostgresStore) Create(ctx context.Context, s *models.Shipment) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO shipments(id, shipper_id, status, origin_address, destination_address,
		origin_lat, origin_lon, dest_lat, dest_lon, goods_description, goods_type, weight_kg,
		payment_amount, pickup_datetime, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		s.ID, s.ShipperID, s.Status, s.OriginAddress, s.DestAddress,
		s.OriginCoord.Lat, s.OriginCoord.Lon, s.DestCoord.Lat, s.DestCoord.Lon,
		s.GoodsDesc, s.GoodsType, s.WeightKg, s.PaymentAmount, s.PickupDatetime,
		s.CreatedAt, s.UpdatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Shipment, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id=$1`, id)
	return scanShipment(row)
}

func (p *PostgresStore) List(ctx context.Context, f ListFilter) ([]*models.Shipment, error) {
	q := `SELECT ` + shipmentColumns + ` FROM shipments`
	var args []any
	switch {
	case f.All:
		// no predicate
	case f.ShipperID != "":
		q += ` WHERE shipper_id=$1`
		args = append(args, f.ShipperID)
	case f.TruckOwnerID != "" && f.OpenPending:
		q += ` WHERE truck_owner_id=$1 OR (status='pending' AND truck_owner_id IS NULL)`
		args = append(args, f.TruckOwnerID)
	case f.TruckOwnerID != "":
		q += ` WHERE truck_owner_id=$1`
		args = append(args, f.TruckOwnerID)
	case f.OpenPending:
		q += ` WHERE status='pending' AND truck_owner_id IS NULL`
	default:
		return nil, nil
	}
	q += ` ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Assign is the check-and-set claim of an open shipment. The WHERE clause is
// the whole mechanism: under concurrent attempts only one UPDATE matches.
func (p *PostgresStore) Assign(ctx context.Context, id, truckOwnerID string, at time.Time) (*models.Shipment, error) {
	row := p.db.QueryRowContext(ctx, `UPDATE shipments
		SET truck_owner_id=$1, status='accepted', accepted_at=$2, updated_at=$2
		WHERE id=$3 AND status='pending' AND truck_owner_id IS NULL
		RETURNING `+shipmentColumns, truckOwnerID, at, id)
	s, err := scanShipment(row)
	if errors.Is(err, ErrNotFound) {
		return nil, p.reclassify(ctx, id)
	}
	return s, err
}

func (p *PostgresStore) AdvanceStatus(ctx context.Context, id string, from, to models.Status, at time.Time) (*models.Shipment, error) {
	stampCol := map[models.Status]string{
		models.StatusPickedUp:  "picked_up_at",
		models.StatusInTransit: "in_transit_at",
		models.StatusDelivered: "delivered_at",
	}[to]
	q := `UPDATE shipments SET status=$1, updated_at=$2`
	if stampCol != "" {
		q += `, ` + stampCol + `=$2`
	}
	q += ` WHERE id=$3 AND status=$4 RETURNING ` + shipmentColumns
	row := p.db.QueryRowContext(ctx, q, to, at, id, from)
	s, err := scanShipment(row)
	if errors.Is(err, ErrNotFound) {
		return nil, p.reclassify(ctx, id)
	}
	return s, err
}

// reclassify distinguishes "row missing" from "row present but condition
// failed" after a conditional update matched nothing.
func (p *PostgresStore) reclassify(ctx context.Context, id string) error {
	if _, err := p.Get(ctx, id); err != nil {
		return err
	}
	return ErrConditionFailed
}

func (p *PostgresStore) Append(ctx context.Context, pt models.TrackingPoint) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO tracking_points(shipment_id, lat, lon, speed, accuracy, heading, altitude, ts)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		pt.ShipmentID, pt.Lat, pt.Lon, pt.SpeedMps, pt.AccuracyM, pt.Heading, pt.AltitudeM, pt.Timestamp)
	return err
}

func (p *PostgresStore) Latest(ctx context.Context, shipmentID string) (models.TrackingPoint, error) {
	var pt models.TrackingPoint
	pt.ShipmentID = shipmentID
	err := p.db.QueryRowContext(ctx, `SELECT lat, lon, speed, accuracy, heading, altitude, ts
		FROM tracking_points WHERE shipment_id=$1 ORDER BY ts DESC LIMIT 1`, shipmentID).
		Scan(&pt.Lat, &pt.Lon, &pt.SpeedMps, &pt.AccuracyM, &pt.Heading, &pt.AltitudeM, &pt.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TrackingPoint{}, ErrNotFound
	}
	return pt, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (*models.Shipment, error) {
	var s models.Shipment
	var owner sql.NullString
	var acceptedAt, pickedUpAt, inTransitAt, deliveredAt sql.NullTime
	err := row.Scan(&s.ID, &s.ShipperID, &owner, &s.Status, &s.OriginAddress, &s.DestAddress,
		&s.OriginCoord.Lat, &s.OriginCoord.Lon, &s.DestCoord.Lat, &s.DestCoord.Lon,
		&s.GoodsDesc, &s.GoodsType, &s.WeightKg, &s.PaymentAmount, &s.PickupDatetime,
		&s.CreatedAt, &s.UpdatedAt, &acceptedAt, &pickedUpAt, &inTransitAt, &deliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if owner.Valid {
		s.TruckOwnerID = owner.String
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		s.AcceptedAt = &t
	}
	if pickedUpAt.Valid {
		t := pickedUpAt.Time
		s.PickedUpAt = &t
	}
	if inTransitAt.Valid {
		t := inTransitAt.Time
		s.InTransitAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		s.DeliveredAt = &t
	}
	return &s, nil
}
