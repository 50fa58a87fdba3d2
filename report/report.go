package report

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"digitlab/ml"
	"digitlab/search"
)

func printer() *message.Printer { return message.NewPrinter(language.English) }

// WriteDatasetSummary prints the sample count and per-label counts.
func WriteDatasetSummary(w io.Writer, samples, features int, counts [ml.NumClasses]int) {
	p := printer()
	p.Fprintf(w, "dataset: %d samples, %d features\n", samples, features)
	p.Fprintf(w, "%-7s", "label")
	for l := range counts {
		p.Fprintf(w, "%6d", l)
	}
	p.Fprintf(w, "\n%-7s", "count")
	for _, c := range counts {
		p.Fprintf(w, "%6d", c)
	}
	p.Fprintln(w)
}

// WriteSplitSummary prints the train/test sizes.
func WriteSplitSummary(w io.Writer, train, test int) {
	printer().Fprintf(w, "split: %d train / %d test\n", train, test)
}

// WriteClassificationReport prints per-label precision, recall, F1 and
// support followed by accuracy and the two averages.
func WriteClassificationReport(w io.Writer, e *ml.Evaluation) {
	p := printer()
	p.Fprintf(w, "== %s ==\n", e.Model)
	if e.Err != nil {
		p.Fprintf(w, "failed: %v\n\n", e.Err)
		return
	}
	p.Fprintf(w, "%-12s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	for _, c := range e.PerClass {
		p.Fprintf(w, "%-12d %9.2f %9.2f %9.2f %9d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	p.Fprintln(w)
	p.Fprintf(w, "%-12s %9s %9s %9.2f %9d\n", "accuracy", "", "", e.Accuracy, e.Confusion.Total())
	p.Fprintf(w, "%-12s %9.2f %9.2f %9.2f %9d\n", "macro avg", e.Macro.Precision, e.Macro.Recall, e.Macro.F1, e.Macro.Support)
	p.Fprintf(w, "%-12s %9.2f %9.2f %9.2f %9d\n\n", "weighted avg", e.Weighted.Precision, e.Weighted.Recall, e.Weighted.F1, e.Weighted.Support)
}

// RenderConfusion hands the confusion matrix of e to r.
func RenderConfusion(r Renderer, e *ml.Evaluation) {
	if e == nil || e.Err != nil {
		return
	}
	r.Render(e.Confusion.Matrix(), fmt.Sprintf("confusion matrix: %s", e.Model), "predicted", "true")
}

// WriteAccuracyTable prints one accuracy line per model in input order.
func WriteAccuracyTable(w io.Writer, evals []*ml.Evaluation) {
	p := printer()
	p.Fprintf(w, "%-16s %9s %9s\n", "model", "accuracy", "macro f1")
	for _, e := range evals {
		if e == nil {
			continue
		}
		if e.Err != nil {
			p.Fprintf(w, "%-16s %9s %9s\n", e.Model, "failed", "-")
			continue
		}
		p.Fprintf(w, "%-16s %9.4f %9.4f\n", e.Model, e.Accuracy, e.Macro.F1)
	}
	p.Fprintln(w)
}

// WriteGridTable prints every candidate in enumeration order with its mean
// cross-validation score and rank, marking the winner.
func WriteGridTable(w io.Writer, r *search.Result) {
	p := printer()
	p.Fprintf(w, "%-4s %-6s %-7s %-6s %10s %8s %5s\n", "id", "C", "gamma", "kernel", "mean", "std", "rank")
	for _, c := range r.Candidates {
		mark := ""
		if c.ID == r.Best.ID {
			mark = " *"
		}
		if c.Status != search.StatusCompleted {
			p.Fprintf(w, "%-4d %-6g %-7s %-6s %10s %8s %5d%s\n", c.ID, c.Params.C, c.Params.Gamma, c.Params.Kernel, "failed", "-", c.Rank, mark)
			continue
		}
		p.Fprintf(w, "%-4d %-6g %-7s %-6s %10.4f %8.4f %5d%s\n", c.ID, c.Params.C, c.Params.Gamma, c.Params.Kernel, c.MeanScore, c.StdScore, c.Rank, mark)
	}
	p.Fprintf(w, "best: %s (mean cv accuracy %.4f)\n", r.Best.Params, r.Best.MeanScore)
	if r.Refit != nil && r.Refit.Err == nil {
		p.Fprintf(w, "refit test accuracy: %.4f\n", r.Refit.Accuracy)
	}
	p.Fprintf(w, "search took %v\n\n", r.Duration.Round(time.Millisecond))
}

// RenderGallery renders up to n images with their labels.
func RenderGallery(r Renderer, images [][][]float64, labels []int, n int) {
	if n > len(images) {
		n = len(images)
	}
	for i := 0; i < n; i++ {
		r.Render(images[i], fmt.Sprintf("training: %d", labels[i]), "", "")
	}
}
