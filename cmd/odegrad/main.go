package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/odegrad/internal/config"
	"github.com/san-kum/odegrad/internal/editable"
	"github.com/san-kum/odegrad/internal/ivp"
	"github.com/san-kum/odegrad/internal/models"
	"github.com/san-kum/odegrad/internal/store"
	"github.com/san-kum/odegrad/internal/tensor"
	"github.com/san-kum/odegrad/internal/tui"
	"github.com/spf13/cobra"
)

var (
	method     string
	bckMethod  string
	t0         float64
	t1         float64
	samples    int
	rtol       float64
	atol       float64
	maxSteps   int
	initState  string
	configFile string
	preset     string
	plotState  int
	doPlot     bool
	jsonOut    string
	live       bool
	fdCheck    bool
	fdEps      float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "odegrad",
		Short: "differentiable ODE solving with adjoint gradients",
	}

	solveCmd := &cobra.Command{
		Use:   "solve [model]",
		Short: "integrate a model over a time grid",
		Args:  cobra.ExactArgs(1),
		RunE:  runSolve,
	}
	addRunFlags(solveCmd)
	solveCmd.Flags().BoolVar(&doPlot, "plot", false, "plot a state component")
	solveCmd.Flags().IntVar(&plotState, "state", 0, "state index to plot")
	solveCmd.Flags().StringVar(&jsonOut, "json", "", "export result as JSON ('-' for stdout)")
	solveCmd.Flags().BoolVar(&live, "live", false, "show live progress view")

	gradCmd := &cobra.Command{
		Use:   "grad [model]",
		Short: "adjoint gradients of the final state sum",
		Args:  cobra.ExactArgs(1),
		RunE:  runGrad,
	}
	addRunFlags(gradCmd)
	gradCmd.Flags().BoolVar(&fdCheck, "fd", false, "compare against finite differences")
	gradCmd.Flags().Float64Var(&fdEps, "eps", 1e-5, "finite difference step")
	gradCmd.Flags().StringVar(&jsonOut, "json", "", "export result as JSON ('-' for stdout)")

	checkCmd := &cobra.Command{
		Use:   "check [model]",
		Short: "verify the model declares every influencing parameter",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
	addRunFlags(checkCmd)

	methodsCmd := &cobra.Command{
		Use:   "methods",
		Short: "list integration methods",
		Run: func(cmd *cobra.Command, args []string) {
			names := ivp.Methods()
			sort.Strings(names)
			for _, name := range names {
				fmt.Println(name)
			}
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models and their presets",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range models.List() {
				presets := config.ListPresets(name)
				sort.Strings(presets)
				if len(presets) > 0 {
					fmt.Printf("%s (presets: %s)\n", name, strings.Join(presets, ", "))
				} else {
					fmt.Println(name)
				}
			}
		},
	}

	rootCmd.AddCommand(solveCmd, gradCmd, checkCmd, methodsCmd, modelsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&method, "method", config.DefaultMethod, "integration method")
	cmd.Flags().StringVar(&bckMethod, "backward-method", "", "method for adjoint sub-solves (defaults to --method)")
	cmd.Flags().Float64Var(&t0, "t0", config.DefaultT0, "start time")
	cmd.Flags().Float64Var(&t1, "t1", config.DefaultT1, "end time")
	cmd.Flags().IntVar(&samples, "samples", config.DefaultSamples, "number of grid points")
	cmd.Flags().Float64Var(&rtol, "rtol", config.DefaultRTol, "relative tolerance")
	cmd.Flags().Float64Var(&atol, "atol", config.DefaultATol, "absolute tolerance")
	cmd.Flags().IntVar(&maxSteps, "max-steps", config.DefaultMaxSteps, "adaptive step budget per interval")
	cmd.Flags().StringVar(&initState, "y0", "", "initial state, comma separated")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
}

// resolveConfig merges preset, config file and flags, in that order of
// increasing precedence, into one run configuration.
func resolveConfig(cmd *cobra.Command, model string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Model = model

	if preset != "" {
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		*cfg = *p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		loaded.Model = model
		*cfg = *loaded
	}

	if cmd.Flags().Changed("method") {
		cfg.Method = method
	}
	if cmd.Flags().Changed("backward-method") {
		cfg.BackwardMethod = bckMethod
	}
	if cmd.Flags().Changed("t0") {
		cfg.T0 = t0
	}
	if cmd.Flags().Changed("t1") {
		cfg.T1 = t1
	}
	if cmd.Flags().Changed("samples") {
		cfg.Samples = samples
	}
	if cmd.Flags().Changed("rtol") {
		cfg.RTol = rtol
	}
	if cmd.Flags().Changed("atol") {
		cfg.ATol = atol
	}
	if cmd.Flags().Changed("max-steps") {
		cfg.MaxSteps = maxSteps
	}
	if initState != "" {
		y0, err := parseFloats(initState)
		if err != nil {
			return nil, fmt.Errorf("bad --y0: %w", err)
		}
		cfg.InitState = y0
	}
	return cfg, nil
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type run struct {
	cfg   *config.Config
	model models.System
	ts    *tensor.Tensor
	y0    *tensor.Tensor
	fwd   ivp.Options
	bck   ivp.Options
}

func setup(cmd *cobra.Command, name string) (*run, error) {
	cfg, err := resolveConfig(cmd, name)
	if err != nil {
		return nil, err
	}
	m, err := models.New(cfg.Model, cfg.Params)
	if err != nil {
		return nil, err
	}
	state := cfg.InitState
	if len(state) == 0 {
		state = m.DefaultState()
	}
	if len(state) != m.StateDim() {
		return nil, fmt.Errorf("model %s wants %d state components, got %d", cfg.Model, m.StateDim(), len(state))
	}
	r := &run{
		cfg:   cfg,
		model: m,
		ts:    tensor.Linspace(cfg.T0, cfg.T1, cfg.Samples),
		y0:    tensor.New(state, len(state)),
		fwd:   ivp.Options{Method: cfg.Method, RTol: cfg.RTol, ATol: cfg.ATol, MaxSteps: cfg.MaxSteps},
		bck:   ivp.Options{Method: cfg.BackwardOrForward(), RTol: cfg.RTol, ATol: cfg.ATol, MaxSteps: cfg.MaxSteps},
	}
	return r, nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	r, err := setup(cmd, args[0])
	if err != nil {
		return err
	}

	var yt []*tensor.Tensor
	if live {
		yt, err = liveSolve(r, tui.Run)
	} else {
		yt, err = ivp.Solve(r.model, r.ts, r.y0, nil, r.fwd, r.bck)
	}
	if err != nil {
		return err
	}

	if jsonOut != "" {
		return exportResult(r, yt, nil)
	}
	if doPlot {
		return plotSolution(r, yt)
	}
	return printSolution(r, yt)
}

var errAborted = errors.New("solve aborted")

// liveSolve runs the solver in the background while view displays the
// streamed samples. The done channel orders the solver's writes before
// the reads below; a viewer dismissed mid-solve aborts instead of racing
// the still-running goroutine. view is tui.Run outside of tests.
func liveSolve(r *run, view func(title string, total int, samples <-chan tui.Sample, solveErr func() error) error) ([]*tensor.Tensor, error) {
	ch := make(chan tui.Sample, 64)
	r.fwd.Observer = func(i int, t float64, y *tensor.Tensor) {
		ch <- tui.Sample{Index: i, T: t, State: append([]float64(nil), y.Data()...)}
	}

	var (
		yt       []*tensor.Tensor
		solveErr error
	)
	done := make(chan struct{})
	go func() {
		yt, solveErr = ivp.Solve(r.model, r.ts, r.y0, nil, r.fwd, r.bck)
		// done first, so once the viewer can observe the closed sample
		// channel the completion is already visible below.
		close(done)
		close(ch)
	}()

	if err := view(r.cfg.Model, r.cfg.Samples, ch, func() error { return solveErr }); err != nil {
		return nil, err
	}
	select {
	case <-done:
	default:
		return nil, errAborted
	}
	if solveErr != nil {
		return nil, solveErr
	}
	return yt, nil
}

func printSolution(r *run, yt []*tensor.Tensor) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "t\tstate")
	ts := r.ts.Data()
	stride := 1
	if len(ts) > 20 {
		stride = len(ts) / 20
	}
	for i := 0; i < len(ts); i += stride {
		fmt.Fprintf(w, "%.4f\t%s\n", ts[i], formatState(yt[i].Data()))
	}
	if (len(ts)-1)%stride != 0 {
		fmt.Fprintf(w, "%.4f\t%s\n", ts[len(ts)-1], formatState(yt[len(ts)-1].Data()))
	}
	return w.Flush()
}

func formatState(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("% .6f", v)
	}
	return strings.Join(parts, "  ")
}

func plotSolution(r *run, yt []*tensor.Tensor) error {
	if plotState < 0 || plotState >= r.model.StateDim() {
		return fmt.Errorf("state index %d out of range for %s", plotState, r.cfg.Model)
	}
	data := make([]float64, len(yt))
	for i, y := range yt {
		data[i] = y.At(plotState)
	}
	caption := fmt.Sprintf("%s y[%d], t in [%.2f, %.2f], %s", r.cfg.Model, plotState, r.cfg.T0, r.cfg.T1, r.cfg.Method)
	graph := asciigraph.Plot(data,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Println(graph)
	return nil
}

func exportResult(r *run, yt []*tensor.Tensor, grads map[string][]float64) error {
	res := &store.Result{
		Model:     r.cfg.Model,
		Method:    r.cfg.Method,
		RTol:      r.cfg.RTol,
		ATol:      r.cfg.ATol,
		Samples:   r.cfg.Samples,
		Times:     r.ts.Data(),
		States:    make([][]float64, len(yt)),
		Gradients: grads,
	}
	for i, y := range yt {
		res.States[i] = append([]float64(nil), y.Data()...)
	}
	if jsonOut == "-" {
		return store.ExportJSONStdout(res)
	}
	return store.ExportJSON(jsonOut, res)
}

func runGrad(cmd *cobra.Command, args []string) error {
	r, err := setup(cmd, args[0])
	if err != nil {
		return err
	}

	slots := r.model.ParamManifest()
	inputs := []*tensor.Tensor{r.y0.Leaf()}
	names := []string{"y0"}
	for _, slot := range slots {
		inputs = append(inputs, slot.Get().Leaf())
		names = append(names, slot.Name)
	}

	loss, yt, err := finalStateSum(r)
	if err != nil {
		return err
	}
	grads, err := tensor.Grad(loss, nil, inputs, tensor.GradOptions{})
	if err != nil {
		return err
	}

	if jsonOut != "" {
		gm := make(map[string][]float64, len(names))
		for i, name := range names {
			gm[name] = append([]float64(nil), grads[i].Data()...)
		}
		return exportResult(r, yt, gm)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "loss (sum of final state): %.8f\n", loss.Float())
	if fdCheck {
		fmt.Fprintln(w, "param\tadjoint\tfinite diff\trel err")
		for i, slot := range slots {
			fd, err := fdParam(r, slot.Name, fdEps)
			if err != nil {
				return err
			}
			adj := grads[i+1].Float()
			fmt.Fprintf(w, "%s\t% .8f\t% .8f\t%.2e\n", slot.Name, adj, fd, relErr(adj, fd))
		}
	} else {
		fmt.Fprintln(w, "param\tgradient")
		for i, name := range names {
			fmt.Fprintf(w, "%s\t%s\n", name, formatState(grads[i].Data()))
		}
	}
	return w.Flush()
}

func finalStateSum(r *run) (*tensor.Tensor, []*tensor.Tensor, error) {
	yt, err := ivp.Solve(r.model, r.ts, r.y0, nil, r.fwd, r.bck)
	if err != nil {
		return nil, nil, err
	}
	return tensor.Sum(yt[len(yt)-1]), yt, nil
}

// fdParam estimates the loss derivative for one named parameter by
// central differences on a freshly built model.
func fdParam(r *run, name string, eps float64) (float64, error) {
	eval := func(delta float64) (float64, error) {
		params := map[string]float64{}
		for k, v := range r.cfg.Params {
			params[k] = v
		}
		base, ok := params[name]
		if !ok {
			m, err := models.New(r.cfg.Model, nil)
			if err != nil {
				return 0, err
			}
			for _, slot := range m.ParamManifest() {
				if slot.Name == name {
					base = slot.Get().Float()
				}
			}
		}
		params[name] = base + delta
		m, err := models.New(r.cfg.Model, params)
		if err != nil {
			return 0, err
		}
		yt, err := ivp.Solve(m, r.ts, r.y0.Detach(), nil, r.fwd, r.bck)
		if err != nil {
			return 0, err
		}
		return tensor.Sum(yt[len(yt)-1]).Float(), nil
	}
	hi, err := eval(eps)
	if err != nil {
		return 0, err
	}
	lo, err := eval(-eps)
	if err != nil {
		return 0, err
	}
	return (hi - lo) / (2 * eps), nil
}

func relErr(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}

func runCheck(cmd *cobra.Command, args []string) error {
	r, err := setup(cmd, args[0])
	if err != nil {
		return err
	}

	missing, err := editable.MissingParams(r.model, ivp.Operation, func() (*tensor.Tensor, error) {
		loss, _, err := finalStateSum(r)
		return loss, err
	})
	if err != nil {
		return err
	}

	if len(missing) == 0 {
		fmt.Printf("%s: ok, all influencing parameters declared for %q\n", r.cfg.Model, ivp.Operation)
		return nil
	}
	fmt.Printf("%s: parameters influencing %q but not declared:\n", r.cfg.Model, ivp.Operation)
	for _, name := range missing {
		fmt.Printf("  %s\n", name)
	}
	return fmt.Errorf("%d undeclared parameter(s)", len(missing))
}
