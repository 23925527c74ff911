package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/capiorg/backend-auth/internal/model"
)

// DeviceRepo defines the interface for device repository operations.
// Devices are append-only; there is no update.
type DeviceRepo interface {
	Create(ctx context.Context, device *model.SessionDevice) error
	Get(ctx context.Context, id uuid.UUID) (model.SessionDevice, error)
}

type deviceRepo struct {
	q Querier
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(q Querier) DeviceRepo {
	return &deviceRepo{q: q}
}

// Create records a device fingerprint
func (r *deviceRepo) Create(ctx context.Context, device *model.SessionDevice) error {
	if device.ID == uuid.Nil {
		id, err := newID()
		if err != nil {
			return err
		}
		device.ID = id
	}

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO sessions_devices (
			uuid, device_type, device_brand, device_family, os_family, os_version,
			browser_family, browser_version, ip, country, city
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, device.ID, device.DeviceType, device.DeviceBrand, device.DeviceFamily, device.OSFamily, device.OSVersion,
		device.BrowserFamily, device.BrowserVersion, device.IP, device.Country, device.City,
	).Scan(&device.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", translate("devices.create", err))
	}
	return nil
}

// Get loads a device fingerprint
func (r *deviceRepo) Get(ctx context.Context, id uuid.UUID) (model.SessionDevice, error) {
	var d model.SessionDevice
	err := r.q.QueryRowContext(ctx, `
		SELECT uuid, device_type, device_brand, device_family, os_family, os_version,
		       browser_family, browser_version, ip, country, city, created_at
		FROM sessions_devices
		WHERE uuid = $1
	`, id).Scan(
		&d.ID, &d.DeviceType, &d.DeviceBrand, &d.DeviceFamily, &d.OSFamily, &d.OSVersion,
		&d.BrowserFamily, &d.BrowserVersion, &d.IP, &d.Country, &d.City, &d.CreatedAt,
	)
	if err != nil {
		return model.SessionDevice{}, fmt.Errorf("failed to query device: %w", translate("devices.get", err))
	}
	return d, nil
}
