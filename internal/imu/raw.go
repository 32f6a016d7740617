// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"

	"github.com/golang/geo/r3"
)

// StandardGravity in m/s^2.
const StandardGravity = 9.80665

// Raw represents a single raw accel+gyro reading in sensor counts.
type Raw struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// Scale converts raw counts to SI units.
type Scale struct {
	AccelLSBPerG   float64
	GyroLSBPerDegS float64
}

// MPU9250Scale returns the count scale for the MPU9250 full-scale range codes.
// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
func MPU9250Scale(accelRange, gyroRange byte) Scale {
	return Scale{
		AccelLSBPerG:   16384.0 / float64(int(1)<<accelRange),
		GyroLSBPerDegS: 131.0 / float64(int(1)<<gyroRange),
	}
}

// FromRaw converts a raw reading into a Sample stamped with timestampNs.
func FromRaw(raw Raw, timestampNs int64, scale Scale) Sample {
	accel := func(v int16) float64 { return float64(v) / scale.AccelLSBPerG * StandardGravity }
	gyro := func(v int16) float64 { return float64(v) / scale.GyroLSBPerDegS * math.Pi / 180.0 }

	return Sample{
		TimestampNs:     timestampNs,
		AngularVelocity: r3.Vector{X: gyro(raw.Gx), Y: gyro(raw.Gy), Z: gyro(raw.Gz)},
		LinearAccel:     r3.Vector{X: accel(raw.Ax), Y: accel(raw.Ay), Z: accel(raw.Az)},
	}
}
