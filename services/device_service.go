package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gymAccessAPI/internal/device"
)

type DeviceService struct {
	db *pgxpool.Pool
}

func NewDeviceService(db *pgxpool.Pool) *DeviceService {
	return &DeviceService{db: db}
}

// FindByID returns the device row, or (nil, nil) when no such device is
// registered. The gate distinguishes "not found" from "found but inactive".
func (s *DeviceService) FindByID(ctx context.Context, deviceID string) (*device.Device, error) {
	query := `
		SELECT id, name, location, is_active, created_at
		FROM devices
		WHERE id = $1
	`
	d := &device.Device{}
	err := s.db.QueryRow(ctx, query, deviceID).Scan(&d.ID, &d.Name, &d.Location, &d.IsActive, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	return d, nil
}
