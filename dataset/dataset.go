// Package dataset supplies the 8x8 handwritten digit samples: a fixed matrix
// of 64 pixel intensities per sample and one label in [0,9].
package dataset

import (
	"context"
	"fmt"
	"math"

	"digitlab/ml"
)

const (
	// ImageSide is the width and height of a digit image.
	ImageSide = 8
	// FeatureCount is the number of pixel features per sample.
	FeatureCount = ImageSide * ImageSide
	// CanonicalSize is the sample count of the reference digits set.
	CanonicalSize = 1797
)

// Provider fetches a complete dataset in one call.
type Provider interface {
	Load(ctx context.Context) (*Dataset, error)
}

// Dataset is an ordered collection of samples. Features and Labels are
// parallel and must not be modified after loading.
type Dataset struct {
	Features [][]float64
	Labels   []int
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Labels) }

// Validate checks the shape invariants: parallel lengths, 64 finite features
// per row and labels in [0,9]. A smaller observed label set is accepted.
func (d *Dataset) Validate() error {
	if len(d.Features) == 0 {
		return ml.NewDataShapeError(-1, -1, "dataset is empty")
	}
	if len(d.Features) != len(d.Labels) {
		return ml.NewDataShapeError(-1, -1,
			fmt.Sprintf("%d feature rows but %d labels", len(d.Features), len(d.Labels)))
	}
	for i, row := range d.Features {
		if len(row) != FeatureCount {
			return ml.NewDataShapeError(i, -1,
				fmt.Sprintf("expected %d features, got %d", FeatureCount, len(row)))
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ml.NewDataShapeError(i, j, "missing or non-finite value")
			}
		}
		if l := d.Labels[i]; l < 0 || l >= ml.NumClasses {
			return ml.NewDataShapeError(i, -1, fmt.Sprintf("label %d out of range", l))
		}
	}
	return nil
}

// ClassCounts returns the number of samples per label.
func (d *Dataset) ClassCounts() [ml.NumClasses]int {
	var counts [ml.NumClasses]int
	for _, l := range d.Labels {
		if l >= 0 && l < ml.NumClasses {
			counts[l]++
		}
	}
	return counts
}

// Image reshapes sample i into ImageSide rows for display.
func (d *Dataset) Image(i int) [][]float64 {
	img := make([][]float64, ImageSide)
	for r := range img {
		img[r] = d.Features[i][r*ImageSide : (r+1)*ImageSide]
	}
	return img
}

// LoadValidated loads from p and validates the result.
func LoadValidated(ctx context.Context, p Provider) (*Dataset, error) {
	d, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
