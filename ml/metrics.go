package ml

import "fmt"

// ConfusionMatrix counts test rows by true label (row) and predicted label (column).
type ConfusionMatrix [NumClasses][NumClasses]int

// ClassMetrics holds precision, recall and F1 of one label.
type ClassMetrics struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Evaluation is the scored outcome of one fitted model on a test set.
type Evaluation struct {
	Model     string          `json:"model"`
	Accuracy  float64         `json:"accuracy"`
	Confusion ConfusionMatrix `json:"confusion"`
	PerClass  []ClassMetrics  `json:"per_class"`
	Macro     ClassMetrics    `json:"macro"`
	Weighted  ClassMetrics    `json:"weighted"`
	Err       error           `json:"-"`
}

// Accuracy is the share of rows where yPred equals yTrue.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

// NewConfusionMatrix tallies predictions. Labels outside [0,NumClasses) are an error.
func NewConfusionMatrix(yTrue, yPred []int) (ConfusionMatrix, error) {
	var m ConfusionMatrix
	if len(yTrue) != len(yPred) {
		return m, NewDataShapeError(-1, -1, "true and predicted labels size mismatch")
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= NumClasses || p < 0 || p >= NumClasses {
			return m, NewDataShapeError(i, -1, fmt.Sprintf("label out of range: true=%d predicted=%d", t, p))
		}
		m[t][p]++
	}
	return m, nil
}

// Total is the sum of all cells.
func (m ConfusionMatrix) Total() int {
	total := 0
	for i := range m {
		total += m.RowSum(i)
	}
	return total
}

// RowSum is the number of rows whose true label is i.
func (m ConfusionMatrix) RowSum(i int) int {
	s := 0
	for _, v := range m[i] {
		s += v
	}
	return s
}

// ColSum is the number of rows predicted as j.
func (m ConfusionMatrix) ColSum(j int) int {
	s := 0
	for i := range m {
		s += m[i][j]
	}
	return s
}

// Correct is the trace of the matrix.
func (m ConfusionMatrix) Correct() int {
	c := 0
	for i := range m {
		c += m[i][i]
	}
	return c
}

// Matrix returns the counts as float rows, for rendering.
func (m ConfusionMatrix) Matrix() [][]float64 {
	out := make([][]float64, NumClasses)
	for i := range m {
		out[i] = make([]float64, NumClasses)
		for j, v := range m[i] {
			out[i][j] = float64(v)
		}
	}
	return out
}

// ClassReport derives per-label precision, recall and F1 from the matrix.
// Labels with no support and no predictions are left out; a zero denominator
// yields 0. Macro and support-weighted averages cover the reported labels.
func (m ConfusionMatrix) ClassReport() (perClass []ClassMetrics, macro, weighted ClassMetrics) {
	total := 0
	for label := range m {
		support := m.RowSum(label)
		predicted := m.ColSum(label)
		if support == 0 && predicted == 0 {
			continue
		}
		tp := m[label][label]
		cm := ClassMetrics{Label: label, Support: support}
		if predicted > 0 {
			cm.Precision = float64(tp) / float64(predicted)
		}
		if support > 0 {
			cm.Recall = float64(tp) / float64(support)
		}
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		perClass = append(perClass, cm)

		macro.Precision += cm.Precision
		macro.Recall += cm.Recall
		macro.F1 += cm.F1
		weighted.Precision += cm.Precision * float64(support)
		weighted.Recall += cm.Recall * float64(support)
		weighted.F1 += cm.F1 * float64(support)
		total += support
	}
	macro.Label, weighted.Label = -1, -1
	macro.Support, weighted.Support = total, total
	if n := float64(len(perClass)); n > 0 {
		macro.Precision /= n
		macro.Recall /= n
		macro.F1 /= n
	}
	if total > 0 {
		weighted.Precision /= float64(total)
		weighted.Recall /= float64(total)
		weighted.F1 /= float64(total)
	}
	return perClass, macro, weighted
}

// Evaluate scores predictions for the named model.
func Evaluate(model string, yTrue, yPred []int) (*Evaluation, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	perClass, macro, weighted := cm.ClassReport()
	return &Evaluation{
		Model:     model,
		Accuracy:  Accuracy(yTrue, yPred),
		Confusion: cm,
		PerClass:  perClass,
		Macro:     macro,
		Weighted:  weighted,
	}, nil
}

// FitAndEvaluate fits c on the training rows and scores it on the test rows.
// Fit failures come back as *FitError.
func FitAndEvaluate(name string, c Classifier, trainX [][]float64, trainY []int, testX [][]float64, testY []int) (*Evaluation, error) {
	if err := c.Fit(trainX, trainY); err != nil {
		return nil, &FitError{Model: name, Err: err}
	}
	pred, err := c.Predict(testX)
	if err != nil {
		return nil, &FitError{Model: name, Err: err}
	}
	return Evaluate(name, testY, pred)
}
