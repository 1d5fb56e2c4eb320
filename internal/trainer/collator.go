package trainer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"gonum.org/v1/gonum/mat"

	"lightforge/internal/collate"
	"lightforge/internal/dataset"
	"lightforge/internal/mode"
	"lightforge/internal/model"
	"lightforge/internal/pooling"
)

// encoded is one sample after the encode stage. err is set when the image
// could not be decoded; such samples are dropped by the collate stage.
type encoded struct {
	key      string
	tokens   *mat.Dense // grid x grid intensities, one token per image row band
	mask     []float64  // 1 for tokens inside the image, 0 for padding
	label    int
	hasLabel bool
	err      error
}

// collated is the collate stage output.
type collated struct {
	batch   model.Batch
	dropped int
}

// imageCollator turns WebDataset samples into pooled feature batches.
// Eval falls back to the train hook; predict does not need labels.
type imageCollator struct {
	grid       int
	pool       pooling.Func
	numClasses int
}

func newImageCollator(m mode.Mode, grid int, pool pooling.Func, numClasses int) (*collate.Collator[dataset.Sample, encoded, collated], error) {
	c := &imageCollator{grid: grid, pool: pool, numClasses: numClasses}
	return collate.NewEncoded[dataset.Sample, encoded, collated](m, c, c)
}

func (c *imageCollator) Encode(sample dataset.Sample) (encoded, error) {
	out := encoded{key: sample.Key, label: sample.Label, hasLabel: sample.HasLabel}
	out.tokens, out.mask, out.err = c.tokenize(sample.Image)
	if out.hasLabel {
		out.label = model.ClampLabel(out.label, c.numClasses)
	}
	return out, nil
}

func (c *imageCollator) CollateTrain(batch []encoded) (collated, error) {
	for _, e := range batch {
		if e.err == nil && !e.hasLabel {
			return collated{}, fmt.Errorf("sample %s: missing label", e.key)
		}
	}
	return c.pack(batch, true)
}

func (c *imageCollator) CollatePredict(batch []encoded) (collated, error) {
	return c.pack(batch, false)
}

func (c *imageCollator) pack(batch []encoded, withLabels bool) (collated, error) {
	var out collated
	tokens := make([]*mat.Dense, 0, len(batch))
	var maskData []float64
	for _, e := range batch {
		if e.err != nil {
			out.dropped++
			continue
		}
		tokens = append(tokens, e.tokens)
		maskData = append(maskData, e.mask...)
		out.batch.Keys = append(out.batch.Keys, e.key)
		if withLabels {
			out.batch.Labels = append(out.batch.Labels, e.label)
		}
	}
	if len(tokens) == 0 {
		return out, nil
	}
	mask := mat.NewDense(len(tokens), c.grid, maskData)
	pooled, err := c.pool(tokens, mask)
	if err != nil {
		return collated{}, fmt.Errorf("pool: %w", err)
	}
	out.batch.Inputs = pooled
	return out, nil
}

// tokenize samples the image on a grid x grid lattice. Each lattice row is
// a token; rows past the image height are zero padding.
func (c *imageCollator) tokenize(raw []byte) (*mat.Dense, []float64, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, err
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, nil, errors.New("empty image")
	}
	rows := min(height, c.grid)
	stepX := float64(width) / float64(c.grid)
	stepY := float64(height) / float64(rows)
	tokens := mat.NewDense(c.grid, c.grid, nil)
	mask := make([]float64, c.grid)
	for gy := 0; gy < rows; gy++ {
		mask[gy] = 1
		py := bounds.Min.Y + min(height-1, int(float64(gy)*stepY))
		for gx := 0; gx < c.grid; gx++ {
			px := bounds.Min.X + min(width-1, int(float64(gx)*stepX))
			r, g, b, _ := img.At(px, py).RGBA()
			tokens.Set(gy, gx, (float64(r)+float64(g)+float64(b))/(3*65535.0))
		}
	}
	return tokens, mask, nil
}
