package evaluator

// smoother keeps one prediction per class and blends each frame's
// candidates into it.
//
// For every class the candidate overlapping the previous box best
// (IoU >= MatchIoU) continues the prediction: a rising score is taken as is,
// a falling one is blended as Decay*prev + (1-Decay)*new, and the box moves
// BoxAlpha of the way to the new position. Other candidates of the class
// pass through untouched. A class that disappears is held for MaxMisses
// frames with its confidence multiplied by Decay each frame. Predictions
// under MinConfidence are evicted.
type smoother struct {
	cfg         Smoothing
	predictions map[int]Prediction
}

func newSmoother(cfg Smoothing) *smoother {
	return &smoother{cfg: cfg, predictions: make(map[int]Prediction)}
}

func (s *smoother) reset() {
	s.predictions = make(map[int]Prediction)
}

func (s *smoother) len() int { return len(s.predictions) }

func (s *smoother) confidence(prev, next float64) float64 {
	if next >= prev {
		return next
	}
	return s.cfg.Decay*prev + (1-s.cfg.Decay)*next
}

// apply consumes candidates sorted by confidence and returns annotations
// in sensor space, before thresholding.
func (s *smoother) apply(cands []Detection, label func(int) string) []Annotation {
	byClass := make(map[int][]Detection)
	var order []int
	for _, d := range cands {
		if _, ok := byClass[d.ClassID]; !ok {
			order = append(order, d.ClassID)
		}
		byClass[d.ClassID] = append(byClass[d.ClassID], d)
	}

	next := make(map[int]Prediction, len(order)+len(s.predictions))
	out := make([]Annotation, 0, len(cands)+len(s.predictions))

	for _, classID := range order {
		group := byClass[classID]
		prev, hasPrev := s.predictions[classID]

		matched, bestIoU := -1, -1.0
		if hasPrev {
			for i, d := range group {
				if iou := prev.Box.IoU(d.Box); iou >= s.cfg.MatchIoU && iou > bestIoU {
					matched, bestIoU = i, iou
				}
			}
		}

		strongest := -1
		for i, d := range group {
			a := Annotation{
				ClassID:    classID,
				Label:      label(classID),
				Confidence: d.Confidence,
				Box:        d.Box,
			}
			if i == matched {
				a.Confidence = s.confidence(prev.Confidence, d.Confidence)
				a.Box = prev.Box.Lerp(d.Box, s.cfg.BoxAlpha)
			}
			out = append(out, a)
			if strongest < 0 || a.Confidence > out[strongest].Confidence {
				strongest = len(out) - 1
			}
		}

		if best := out[strongest]; best.Confidence >= s.cfg.MinConfidence {
			next[classID] = Prediction{Confidence: best.Confidence, Box: best.Box}
		}
	}

	for classID, prev := range s.predictions {
		if _, seen := byClass[classID]; seen || prev.Misses >= s.cfg.MaxMisses {
			continue
		}
		conf := prev.Confidence * s.cfg.Decay
		if conf < s.cfg.MinConfidence {
			continue
		}
		next[classID] = Prediction{Confidence: conf, Box: prev.Box, Misses: prev.Misses + 1}
		out = append(out, Annotation{
			ClassID:    classID,
			Label:      label(classID),
			Confidence: conf,
			Box:        prev.Box,
			Held:       true,
		})
	}

	s.predictions = next
	return out
}
