package ml

import "testing"

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree(2)
	if err := model.Fit(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pred, err := model.Predict([][]float64{{0.15, 0.15}, {0.85, 0.85}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred[0] != 0 || pred[1] != 2 {
		t.Fatalf("expected labels [0 2], got %v", pred)
	}
	if model.NodeCount() != 3 {
		t.Fatalf("expected one split and two leaves, got %d nodes", model.NodeCount())
	}
}

func TestDecisionTreeDeepChildren(t *testing.T) {
	// Four bands on one feature need nested splits on both sides of the root.
	var X [][]float64
	var y []int
	for i := 0; i < 40; i++ {
		X = append(X, []float64{float64(i)})
		y = append(y, (i/10)%2*3+(i/20))
	}
	model := NewDecisionTree(0)
	if err := model.Fit(X, y); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pred, err := model.Predict(X)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range pred {
		if pred[i] != y[i] {
			t.Fatalf("row %d: expected %d, got %d", i, y[i], pred[i])
		}
	}
}

func TestDecisionTreeRejectsBadInput(t *testing.T) {
	model := NewDecisionTree(3)
	if _, err := model.Predict([][]float64{{1}}); err == nil {
		t.Fatalf("expected error before training")
	}
	if err := model.Fit([][]float64{{1}, {2}}, []int{0}); err == nil {
		t.Fatalf("expected error for mismatched labels")
	}
	if err := model.Fit([][]float64{{1, 2}, {2, 3}}, []int{0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict([][]float64{{1}}); err == nil {
		t.Fatalf("expected error for wrong feature count")
	}
}
