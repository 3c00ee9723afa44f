package config

var Presets = map[string]map[string]*Config{
	"decay": {
		"short": {
			Model: "decay", Method: "rk45", T0: 0, T1: 1, Samples: 11,
			RTol: 1e-8, ATol: 1e-8,
			InitState: []float64{1.0},
			Params:    map[string]float64{"k": 0.5},
		},
		"long": {
			Model: "decay", Method: "rk45", T0: 0, T1: 10, Samples: 101,
			RTol: 1e-8, ATol: 1e-8,
			InitState: []float64{1.0},
			Params:    map[string]float64{"k": 0.3},
		},
	},
	"pendulum": {
		"small": {
			Model: "pendulum", Method: "rk45", T0: 0, T1: 10, Samples: 201,
			RTol: 1e-8, ATol: 1e-8,
			InitState: []float64{0.2, 0.0},
			Params:    map[string]float64{"g": 9.81, "l": 1.0, "damping": 0.1},
		},
		"large": {
			Model: "pendulum", Method: "rk45", T0: 0, T1: 10, Samples: 201,
			RTol: 1e-8, ATol: 1e-8,
			InitState: []float64{2.5, 0.0},
			Params:    map[string]float64{"g": 9.81, "l": 1.0, "damping": 0.1},
		},
		"undamped": {
			Model: "pendulum", Method: "rk4", T0: 0, T1: 10, Samples: 1001,
			InitState: []float64{0.5, 0.0},
			Params:    map[string]float64{"g": 9.81, "l": 1.0, "damping": 0.0},
		},
	},
	"lorenz": {
		"classic": {
			Model: "lorenz", Method: "rk45", T0: 0, T1: 20, Samples: 2001,
			RTol: 1e-9, ATol: 1e-9,
			InitState: []float64{1.0, 1.0, 1.0},
			Params:    map[string]float64{"sigma": 10.0, "rho": 28.0, "beta": 8.0 / 3.0},
		},
		"subcritical": {
			Model: "lorenz", Method: "rk45", T0: 0, T1: 20, Samples: 2001,
			InitState: []float64{1.0, 1.0, 1.0},
			Params:    map[string]float64{"sigma": 10.0, "rho": 14.0, "beta": 8.0 / 3.0},
		},
	},
	"springs": {
		"sway": {
			Model: "springs", Method: "rk45", T0: 0, T1: 15, Samples: 301,
			InitState: []float64{1.0, 0.0, -0.5, 0.0},
			Params:    map[string]float64{"k": 4.0, "m1": 1.0, "m2": 1.5},
		},
		"stiff": {
			Model: "springs", Method: "rk45", T0: 0, T1: 5, Samples: 501,
			RTol: 1e-9, ATol: 1e-9,
			InitState: []float64{1.0, 0.0, 1.0, 0.0},
			Params:    map[string]float64{"k": 40.0, "m1": 1.0, "m2": 1.0},
		},
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	return names
}
