// Command histboost trains and applies gradient-boosted tree models on CSV
// data.
//
// Usage:
//
//	histboost <command> [options]
//
// Commands:
//
//	train     Fit a model on a CSV file and save it
//	predict   Write predictions of a saved model for a CSV file
//	eval      Print metrics of a saved model on a labelled CSV file
//
// The last CSV column is the label. Model files ending in .zst, .lz4 or .sz
// are compressed.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/YuminosukeSato/histboost/core/parallel"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/pkg/log"
)

// common holds flags shared by every command.
type common struct {
	logLevel  string
	logFormat string
	workers   int
	sep       string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&c.logFormat, "log-format", "console", "log format: console, json, text")
	fs.IntVar(&c.workers, "workers", parallel.DefaultConfig().Workers, "worker goroutines")
	fs.StringVar(&c.sep, "sep", ",", "CSV field separator")
}

func (c *common) setup() (*parallel.Pool, rune, error) {
	if err := log.SetupLogger(c.logLevel, c.logFormat); err != nil {
		return nil, 0, err
	}
	sep := []rune(c.sep)
	if len(sep) != 1 {
		return nil, 0, errors.Newf("-sep must be a single character, got %q", c.sep)
	}
	cfg := parallel.DefaultConfig()
	cfg.Workers = c.workers
	pool, err := parallel.NewPool(cfg)
	if err != nil {
		return nil, 0, err
	}
	return pool, sep[0], nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "train":
		err = cmdTrain(args)
	case "predict":
		err = cmdPredict(args)
	case "eval":
		err = cmdEval(args)
	case "help", "-h", "-help", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		log.GetLoggerWithName("cli").Error("command failed", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("histboost - histogram gradient boosting")
	fmt.Println()
	fmt.Println("Usage: histboost <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  train     -data train.csv -out model.json[.zst] [-config params.json] [-seed N] [-test 0.2] [-loss-plot loss.png]")
	fmt.Println("  predict   -model model.json -data x.csv [-out preds.csv]")
	fmt.Println("  eval      -model model.json -data test.csv")
	fmt.Println()
	fmt.Println("Run 'histboost <command> -h' for the options of a command.")
}
