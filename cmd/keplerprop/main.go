package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	ttvfast "github.com/ericagol/TTVFast"
	kitlog "github.com/go-kit/kit/log"
	"github.com/soniakeys/meeus/julian"
	"github.com/spf13/viper"
)

// This code only reads the scenario file and iterates the Kepler stepper,
// carrying the converged anomaly forward as the next step's warm start.

const defaultScenario = "~~unset~~"

var (
	scenario string
	verbose  bool
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "propagation scenario TOML file")
	flag.BoolVar(&verbose, "verbose", false, "log every step instead of a summary")
}

func main() {
	flag.Parse()
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger, "cmd", "keplerprop")
	if scenario == defaultScenario {
		logger.Log("level", "critical", "message", "no scenario provided")
		os.Exit(1)
	}
	scenario = strings.Replace(scenario, ".toml", "", 1)
	viper.AddConfigPath(".")
	viper.SetConfigName(scenario)
	if err := viper.ReadInConfig(); err != nil {
		logger.Log("level", "critical", "scenario", scenario, "error", err)
		os.Exit(1)
	}

	epoch := confReadJDEorTime("propagation.start")
	step := viper.GetFloat64("propagation.step")
	steps := viper.GetInt("propagation.steps")
	output := viper.GetString("propagation.output")
	k := viper.GetFloat64("state.k")
	R := confReadVector("state.position")
	V := confReadVector("state.velocity")
	logger.Log("level", "info", "epoch", epoch.Format(time.RFC3339), "step", step, "steps", steps, "k", k)

	f, err := os.Create(output)
	if err != nil {
		logger.Log("level", "critical", "output", output, "error", err)
		os.Exit(1)
	}
	defer f.Close()
	f.WriteString("t,x,y,z,vx,vy,vz,r,rdot,beta,s,ds\n")

	var warmStart float64
	for i := 1; i <= steps; i++ {
		ic := ttvfast.NewInitialConditions(R, V, k, step).WithWarmStart(warmStart)
		state, err := ttvfast.Propagate(ic)
		switch err.(type) {
		case nil:
			// converged
		case ttvfast.NonConvergenceError:
			// Retry once with a fresh initial guess before giving up.
			logger.Log("level", "warning", "step", i, "error", err)
			state, err = ttvfast.Propagate(ic.WithWarmStart(0))
			if err != nil {
				logger.Log("level", "critical", "step", i, "error", err)
				os.Exit(1)
			}
		default:
			logger.Log("level", "critical", "step", i, "error", err)
			os.Exit(1)
		}
		R, V = state.R, state.V
		warmStart = state.S
		f.WriteString(fmt.Sprintf("%f,%f,%f,%f,%f,%f,%f,%f,%f,%f,%f,%e\n",
			float64(i)*step, R[0], R[1], R[2], V[0], V[1], V[2],
			state.RNorm, state.Rdot, state.Beta, state.S, state.DS))
		if verbose {
			logger.Log("level", "info", "step", i, "r", state.RNorm, "beta", state.Beta, "ds", state.DS)
		}
	}
	logger.Log("level", "notice", "status", "finished", "steps", steps, "output", output)
}

func confReadJDEorTime(key string) (dt time.Time) {
	jde := viper.GetFloat64(key)
	if jde == 0 {
		dt = viper.GetTime(key)
	} else {
		dt = julian.JDToTime(jde)
	}
	return
}

func confReadVector(key string) (v [3]float64) {
	for i, axis := range []string{"x", "y", "z"} {
		sub := fmt.Sprintf("%s.%s", key, axis)
		if !viper.IsSet(sub) {
			fmt.Fprintf(os.Stderr, "%s is not set\n", sub)
			os.Exit(1)
		}
		v[i] = viper.GetFloat64(sub)
	}
	return
}
