package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"digitlab/ml"
)

// OptdigitsFile reads the UCI optdigits 8x8 format: one sample per line,
// 64 comma-separated intensities in 0..16 followed by the class label.
// A "?" marks a missing value.
type OptdigitsFile struct {
	Path string
}

// Load reads and parses the whole file.
func (p OptdigitsFile) Load(ctx context.Context) (*Dataset, error) {
	if p.Path == "" {
		return nil, fmt.Errorf("dataset path is required")
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	// Strip a leading byte order mark.
	return ParseOptdigits(ctx, transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
}

// ParseOptdigits parses optdigits records from r.
func ParseOptdigits(ctx context.Context, r io.Reader) (*Dataset, error) {
	d := &Dataset{}
	scanner := bufio.NewScanner(r)
	row := 0
	for scanner.Scan() {
		if row%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != FeatureCount+1 {
			return nil, ml.NewDataShapeError(row, -1,
				fmt.Sprintf("expected %d fields, got %d", FeatureCount+1, len(fields)))
		}
		features := make([]float64, FeatureCount)
		for j, field := range fields[:FeatureCount] {
			field = strings.TrimSpace(field)
			if field == "?" {
				features[j] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, ml.NewDataShapeError(row, j, fmt.Sprintf("invalid value %q", field))
			}
			features[j] = v
		}
		label, err := strconv.Atoi(strings.TrimSpace(fields[FeatureCount]))
		if err != nil {
			return nil, ml.NewDataShapeError(row, FeatureCount, fmt.Sprintf("invalid label %q", fields[FeatureCount]))
		}
		d.Features = append(d.Features, features)
		d.Labels = append(d.Labels, label)
		row++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return d, nil
}

// WriteOptdigits writes d in the optdigits format.
func WriteOptdigits(w io.Writer, d *Dataset) error {
	bw := bufio.NewWriter(w)
	for i, row := range d.Features {
		for _, v := range row {
			if _, err := bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
				return err
			}
			if err := bw.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, "%d\n", d.Labels[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
