package op

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestHuber(t *testing.T) {
	residuals := []float64{-3, -0.5, 0, 0.5, 2}
	want := []float64{2.5, 0.125, 0, 0.125, 1.5}

	g := G.NewGraph()
	x := G.NewVector(g, tensor.Float64, G.WithShape(len(residuals)),
		G.WithName("x"), G.WithValue(tensor.New(
			tensor.WithShape(len(residuals)),
			tensor.WithBacking(residuals),
		)))

	loss, err := Huber(x, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	var lossVal G.Value
	G.Read(loss, &lossVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	have := lossVal.Data().([]float64)
	for i := range want {
		if math.Abs(have[i]-want[i]) > 1e-12 {
			t.Errorf("huber(%v): want(%v) have(%v)", residuals[i], want[i],
				have[i])
		}
	}
}
