// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/vio_frontend/internal/imu"
)

// registerReader is the accel+gyro part of the mpu9250 driver.
type registerReader interface {
	GetAccelerationX() (int16, error)
	GetAccelerationY() (int16, error)
	GetAccelerationZ() (int16, error)
	GetRotationX() (int16, error)
	GetRotationY() (int16, error)
	GetRotationZ() (int16, error)
}

// MPU9250Options configures the SPI-attached sensor.
type MPU9250Options struct {
	SPIDevice string
	CSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	AccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	GyroRange byte
}

// MPU9250Source reads SI inertial samples from an MPU9250. Samples are
// stamped with the clock at read time and are strictly increasing.
type MPU9250Source struct {
	dev    registerReader
	scale  imu.Scale
	clock  clock.Clock
	lastNs int64
}

var _ imu.Source = (*MPU9250Source)(nil)

// NewMPU9250Source initializes the sensor over SPI and calibrates it.
// The device must be at rest during calibration.
func NewMPU9250Source(opts MPU9250Options, logger *zap.SugaredLogger) (*MPU9250Source, error) {
	if opts.AccelRange > 3 || opts.GyroRange > 3 {
		return nil, fmt.Errorf("IMU: range codes must be 0-3, got accel=%d gyro=%d", opts.AccelRange, opts.GyroRange)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(opts.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", opts.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(opts.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", opts.SPIDevice, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if err := dev.SetAccelRange(opts.AccelRange); err != nil {
		return nil, fmt.Errorf("IMU: set accel range: %w", err)
	}
	if err := dev.SetGyroRange(opts.GyroRange); err != nil {
		return nil, fmt.Errorf("IMU: set gyro range: %w", err)
	}
	logger.Infow("IMU ranges set",
		"accel_g", []int{2, 4, 8, 16}[opts.AccelRange],
		"gyro_dps", []int{250, 500, 1000, 2000}[opts.GyroRange],
	)

	if err := dev.Calibrate(); err != nil {
		logger.Warnw("IMU calibration failed", "error", err)
	} else {
		logger.Infow("IMU calibration complete")
	}

	return newMPU9250Source(dev, imu.MPU9250Scale(opts.AccelRange, opts.GyroRange), clock.New()), nil
}

func newMPU9250Source(dev registerReader, scale imu.Scale, clk clock.Clock) *MPU9250Source {
	return &MPU9250Source{dev: dev, scale: scale, clock: clk}
}

// ReadRaw reads the accelerometer and gyroscope registers.
func (s *MPU9250Source) ReadRaw() (imu.Raw, error) {
	var raw imu.Raw
	for _, r := range []struct {
		name string
		get  func() (int16, error)
		dst  *int16
	}{
		{"accel X", s.dev.GetAccelerationX, &raw.Ax},
		{"accel Y", s.dev.GetAccelerationY, &raw.Ay},
		{"accel Z", s.dev.GetAccelerationZ, &raw.Az},
		{"gyro X", s.dev.GetRotationX, &raw.Gx},
		{"gyro Y", s.dev.GetRotationY, &raw.Gy},
		{"gyro Z", s.dev.GetRotationZ, &raw.Gz},
	} {
		v, err := r.get()
		if err != nil {
			return imu.Raw{}, fmt.Errorf("IMU %s: %w", r.name, err)
		}
		*r.dst = v
	}
	return raw, nil
}

// Next implements imu.Source.
func (s *MPU9250Source) Next() (imu.Sample, error) {
	raw, err := s.ReadRaw()
	if err != nil {
		return imu.Sample{}, err
	}
	ts := s.clock.Now().UnixNano()
	if ts <= s.lastNs {
		ts = s.lastNs + 1
	}
	s.lastNs = ts
	return imu.FromRaw(raw, ts, s.scale), nil
}
