package dataset

import (
	"context"
	"math"
	"math/rand"

	"digitlab/ml"
)

// canonicalCounts is the per-label sample count of the reference digits set.
var canonicalCounts = [ml.NumClasses]int{178, 182, 177, 183, 181, 182, 181, 179, 174, 180}

// glyphs are stroke templates, one per digit. '#' is ink.
var glyphs = [ml.NumClasses][ImageSide]string{
	{"..####..", ".##..##.", ".#....#.", ".#....#.", ".#....#.", ".#....#.", ".##..##.", "..####.."},
	{"...##...", "..###...", ".#.##...", "...##...", "...##...", "...##...", "...##...", ".######."},
	{"..####..", ".#....#.", "......#.", ".....#..", "....#...", "...#....", "..#.....", ".######."},
	{"..####..", ".#....#.", "......#.", "...###..", "......#.", "......#.", ".#....#.", "..####.."},
	{"....##..", "...#.#..", "..#..#..", ".#...#..", ".######.", ".....#..", ".....#..", ".....#.."},
	{".######.", ".#......", ".#......", ".#####..", "......#.", "......#.", ".#....#.", "..####.."},
	{"..####..", ".#......", ".#......", ".#####..", ".#....#.", ".#....#.", ".#....#.", "..####.."},
	{".######.", "......#.", ".....#..", "....#...", "...#....", "...#....", "...#....", "...#...."},
	{"..####..", ".#....#.", ".#....#.", "..####..", ".#....#.", ".#....#.", ".#....#.", "..####.."},
	{"..####..", ".#....#.", ".#....#.", "..#####.", "......#.", "......#.", ".....#..", "..###..."},
}

// blankPixels never carry ink, as in scanned digits where the left margin is empty.
var blankPixels = []int{0, 32, 39}

// Synthetic generates digit-like images from glyph templates with seeded
// stroke weight, blur, jitter and noise. The same Samples and Seed always
// produce the same dataset.
type Synthetic struct {
	Samples int
	Seed    int64
	Noise   float64
}

// Load builds the dataset. Samples <= 0 means CanonicalSize; CanonicalSize
// reproduces the reference per-label counts.
func (s Synthetic) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total := s.Samples
	if total <= 0 {
		total = CanonicalSize
	}
	noise := s.Noise
	if noise <= 0 {
		noise = 2.5
	}
	counts := canonicalCounts
	if total != CanonicalSize {
		for c := range counts {
			counts[c] = total / ml.NumClasses
			if c < total%ml.NumClasses {
				counts[c]++
			}
		}
	}

	rnd := rand.New(rand.NewSource(s.Seed))
	d := &Dataset{
		Features: make([][]float64, 0, total),
		Labels:   make([]int, 0, total),
	}
	for label, n := range counts {
		for i := 0; i < n; i++ {
			d.Features = append(d.Features, renderGlyph(label, noise, rnd))
			d.Labels = append(d.Labels, label)
		}
	}
	rnd.Shuffle(len(d.Labels), func(i, j int) {
		d.Features[i], d.Features[j] = d.Features[j], d.Features[i]
		d.Labels[i], d.Labels[j] = d.Labels[j], d.Labels[i]
	})
	return d, nil
}

func renderGlyph(label int, noise float64, rnd *rand.Rand) []float64 {
	weight := 10 + 6*rnd.Float64()
	shift := 0
	if rnd.Float64() < 0.25 {
		shift = 1 - 2*rnd.Intn(2)
	}

	ink := func(r, c int) float64 {
		c -= shift
		if r < 0 || r >= ImageSide || c < 0 || c >= ImageSide {
			return 0
		}
		if glyphs[label][r][c] == '#' {
			return 1
		}
		return 0
	}

	out := make([]float64, FeatureCount)
	for r := 0; r < ImageSide; r++ {
		for c := 0; c < ImageSide; c++ {
			v := weight * ink(r, c)
			if v == 0 {
				v = 0.2 * weight * (ink(r-1, c) + ink(r+1, c) + ink(r, c-1) + ink(r, c+1)) / 4
			}
			v += rnd.NormFloat64() * noise
			out[r*ImageSide+c] = math.Round(math.Max(0, math.Min(16, v)))
		}
	}
	for _, p := range blankPixels {
		out[p] = 0
	}
	return out
}
