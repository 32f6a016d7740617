// Package dataset replays EuRoC MAV sequences into the frontend's input bus.
//
// A sequence directory holds mav0/imu0/data.csv and mav0/cam{0,1}/data.csv,
// with the camera images under mav0/cam{0,1}/data/.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/vio_frontend/internal/camera"
	"github.com/relabs-tech/vio_frontend/internal/imu"
)

// ErrEmptySequence is returned when a sequence has no inertial samples.
var ErrEmptySequence = errors.New("sequence has no inertial samples")

// FrameRef points at the two images of one stereo capture.
type FrameRef struct {
	TimestampNs int64
	LeftPath    string
	RightPath   string
}

// Load decodes both images of the capture.
func (f FrameRef) Load(downsample bool) (camera.FramePair, error) {
	left, err := loadImage(f.LeftPath)
	if err != nil {
		return camera.FramePair{}, err
	}
	right, err := loadImage(f.RightPath)
	if err != nil {
		return camera.FramePair{}, err
	}
	return camera.FramePair{
		TimestampNs: f.TimestampNs,
		Left:        camera.Preprocess(left, downsample),
		Right:       camera.Preprocess(right, downsample),
	}, nil
}

func loadImage(path string) (*image.Gray, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := camera.DecodePNG(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Sequence is a loaded EuRoC recording, both streams sorted by time.
type Sequence struct {
	IMU    []imu.Sample
	Frames []FrameRef
	// Unpaired counts captures present in only one camera's index.
	Unpaired int
}

// Load reads the sequence indexes under root. root may be the sequence
// directory or its mav0 subdirectory.
func Load(root string) (*Sequence, error) {
	mav := filepath.Join(root, "mav0")
	if _, err := os.Stat(mav); err != nil {
		mav = root
	}

	samples, err := readIMU(filepath.Join(mav, "imu0", "data.csv"))
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptySequence
	}

	left, err := readCamera(filepath.Join(mav, "cam0"))
	if err != nil {
		return nil, err
	}
	right, err := readCamera(filepath.Join(mav, "cam1"))
	if err != nil {
		return nil, err
	}

	frames, unpaired := pairFrames(left, right)
	return &Sequence{IMU: samples, Frames: frames, Unpaired: unpaired}, nil
}

func newCSVReader(r io.Reader, fields int) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = fields
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}

func readIMU(path string) ([]imu.Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open imu index: %w", err)
	}
	defer file.Close()

	cr := newCSVReader(file, 7)
	var out []imu.Sample
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		ts, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: timestamp %q: %w", path, rec[0], err)
		}
		var v [6]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s: field %d at %d: %w", path, i+1, ts, err)
			}
		}
		out = append(out, imu.Sample{
			TimestampNs:     ts,
			AngularVelocity: r3.Vector{X: v[0], Y: v[1], Z: v[2]},
			LinearAccel:     r3.Vector{X: v[3], Y: v[4], Z: v[5]},
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TimestampNs < out[j].TimestampNs })
	return out, nil
}

// readCamera returns timestamp -> image path for one camera directory.
func readCamera(dir string) (map[int64]string, error) {
	path := filepath.Join(dir, "data.csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open camera index: %w", err)
	}
	defer file.Close()

	cr := newCSVReader(file, 2)
	out := make(map[int64]string)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: timestamp %q: %w", path, rec[0], err)
		}
		out[ts] = filepath.Join(dir, "data", strings.TrimSpace(rec[1]))
	}
	return out, nil
}

// pairFrames joins the two camera indexes on timestamp.
func pairFrames(left, right map[int64]string) ([]FrameRef, int) {
	frames := make([]FrameRef, 0, len(left))
	for ts, l := range left {
		r, ok := right[ts]
		if !ok {
			continue
		}
		frames = append(frames, FrameRef{TimestampNs: ts, LeftPath: l, RightPath: r})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].TimestampNs < frames[j].TimestampNs })
	unpaired := len(left) + len(right) - 2*len(frames)
	return frames, unpaired
}
