// Package cli implements the autoseg command: one binary that runs the
// auto-label/train/publish pipeline end to end or one stage at a time.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig       = "config"
	flagDebug        = "debug"
	flagEpochs       = "epochs"
	flagStrictLabels = "strict-labels"
	flagManifest     = "manifest"
	flagWeights      = "weights"
)

var app = &cli.App{
	Name:            "autoseg",
	Usage:           "auto-label images with zero-shot prompts, train a segmentation model, publish the weights",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Value:   "autoseg.yaml",
			Usage:   "load pipeline configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "run",
			Usage: "run the full pipeline: intake, label, train, publish",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  flagEpochs,
					Usage: "override the configured epoch count",
				},
				&cli.BoolFlag{
					Name:  flagStrictLabels,
					Usage: "fail the run when the labeler produces zero labels",
				},
			},
			Action: RunAction,
		},
		{
			Name:   "label",
			Usage:  "run intake and zero-shot labeling only",
			Action: LabelAction,
		},
		{
			Name:  "train",
			Usage: "train against an existing dataset manifest",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagManifest,
					Usage: "dataset manifest to train on (defaults to the configured dataset's data.yaml)",
				},
				&cli.IntFlag{
					Name:  flagEpochs,
					Usage: "override the configured epoch count",
				},
			},
			Action: TrainAction,
		},
		{
			Name:  "publish",
			Usage: "archive and store an existing weights file",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagWeights,
					Usage:    "weights file to publish",
					Required: true,
				},
			},
			Action: PublishAction,
		},
		{
			Name:            "store",
			Usage:           "work with the artifact store",
			HideHelpCommand: true,
			Subcommands: []*cli.Command{
				{
					Name:   "sweep",
					Usage:  "remove artifacts whose retention window has passed",
					Action: StoreSweepAction,
				},
			},
		},
	},
}

// NewApp returns the autoseg CLI app with Writer set to out and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
