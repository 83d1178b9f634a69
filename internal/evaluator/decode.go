package evaluator

import (
	"errors"
	"fmt"

	"obstaclecam/internal/inference"
)

var errBadOutput = errors.New("unexpected model output")

// geometry is the model input size the outputs refer to.
type geometry struct {
	width, height int
}

type decoder func(out []inference.Tensor, g geometry) ([]Detection, error)

var decoders = map[Layout]decoder{
	LayoutSSD:       decodeSSD,
	LayoutTFLiteSSD: decodeTFLiteSSD,
	LayoutYOLOv8:    decodeYOLOv8,
}

func decodeSSD(out []inference.Tensor, _ geometry) ([]Detection, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no tensors", errBadOutput)
	}
	data := out[0].Data
	if len(data)%7 != 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of 7", errBadOutput, len(data))
	}

	var dets []Detection
	for i := 0; i+7 <= len(data); i += 7 {
		conf := float64(data[i+2])
		if conf <= 0 {
			continue
		}
		dets = append(dets, Detection{
			ClassID:    int(data[i+1]),
			Confidence: conf,
			Box: Box{
				XMin: float64(data[i+3]),
				YMin: float64(data[i+4]),
				XMax: float64(data[i+5]),
				YMax: float64(data[i+6]),
			}.Clamp(),
		})
	}
	return dets, nil
}

func decodeTFLiteSSD(out []inference.Tensor, _ geometry) ([]Detection, error) {
	if len(out) < 3 {
		return nil, fmt.Errorf("%w: want 4 tensors, got %d", errBadOutput, len(out))
	}
	boxes, classes, scores := out[0].Data, out[1].Data, out[2].Data

	n := len(scores)
	if len(classes) < n {
		n = len(classes)
	}
	if len(boxes)/4 < n {
		n = len(boxes) / 4
	}
	if len(out) > 3 && len(out[3].Data) > 0 {
		if count := int(out[3].Data[0]); count >= 0 && count < n {
			n = count
		}
	}

	dets := make([]Detection, 0, n)
	for i := 0; i < n; i++ {
		conf := float64(scores[i])
		if conf <= 0 {
			continue
		}
		dets = append(dets, Detection{
			ClassID:    int(classes[i]),
			Confidence: conf,
			Box: Box{
				YMin: float64(boxes[i*4]),
				XMin: float64(boxes[i*4+1]),
				YMax: float64(boxes[i*4+2]),
				XMax: float64(boxes[i*4+3]),
			}.Clamp(),
		})
	}
	return dets, nil
}

func decodeYOLOv8(out []inference.Tensor, g geometry) ([]Detection, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no tensors", errBadOutput)
	}
	t := out[0]
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("%w: yolov8 shape %v", errBadOutput, t.Shape)
	}
	rows, n := t.Shape[1], t.Shape[2]
	classes := rows - 4
	if classes <= 0 || len(t.Data) < rows*n {
		return nil, fmt.Errorf("%w: yolov8 shape %v with %d values", errBadOutput, t.Shape, len(t.Data))
	}
	if g.width <= 0 || g.height <= 0 {
		return nil, fmt.Errorf("%w: unknown input size", errBadOutput)
	}
	w, h := float64(g.width), float64(g.height)

	var dets []Detection
	for i := 0; i < n; i++ {
		best, bestID := float32(0), -1
		for c := 0; c < classes; c++ {
			if s := t.Data[(4+c)*n+i]; s > best {
				best, bestID = s, c
			}
		}
		if bestID < 0 {
			continue
		}
		cx := float64(t.Data[i])
		cy := float64(t.Data[n+i])
		bw := float64(t.Data[2*n+i])
		bh := float64(t.Data[3*n+i])
		dets = append(dets, Detection{
			ClassID:    bestID,
			Confidence: float64(best),
			Box: Box{
				XMin: (cx - bw/2) / w,
				YMin: (cy - bh/2) / h,
				XMax: (cx + bw/2) / w,
				YMax: (cy + bh/2) / h,
			}.Clamp(),
		})
	}
	return dets, nil
}
