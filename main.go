package main

import (
	"context"
	"os"
	"os/signal"

	"fyne.io/fyne/v2/app"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"scanlight/internal/config"
	"scanlight/internal/logging"
	"scanlight/internal/session"
	"scanlight/internal/ui"
)

const (
	flagConfig = "config"
	flagDebug  = "debug"

	flagDir       = "dir"
	flagOut       = "out"
	flagThreshold = "threshold"

	flagDataSet             = "dataset"
	flagCameraIntrinsics    = "camera-intrinsics"
	flagCameraExtrinsics    = "camera-extrinsics"
	flagProjectorIntrinsics = "projector-intrinsics"
	flagProjectorExtrinsics = "projector-extrinsics"
	flagWorldMap            = "world-map"
	flagPCD                 = "pcd"
)

func main() {
	var (
		cfg    *config.Config
		logger *zap.SugaredLogger
	)

	cliApp := &cli.App{
		Name:  "scanlight",
		Usage: "decode structured light scans and triangulate them into point clouds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath,
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			cfg = config.LoadConfigFile(c.String(flagConfig))
			logger = logging.New(c.Bool(flagDebug) || cfg.Log.Debug)
			return cfg.Validate()
		},
		After: func(*cli.Context) error {
			if logger != nil {
				logger.Sync()
			}
			return nil
		},
		Action: func(*cli.Context) error {
			return runDecodeApp(cfg, logger)
		},
		Commands: []*cli.Command{
			{
				Name:  "decode",
				Usage: "open the decoder window",
				Action: func(*cli.Context) error {
					return runDecodeApp(cfg, logger)
				},
			},
			{
				Name:  "triangulate",
				Usage: "open the triangulation window",
				Action: func(*cli.Context) error {
					s, err := session.NewTriangulateSession(cfg, logger)
					if err != nil {
						return err
					}
					ui.NewTriangulateApp(app.New(), s, cfg, logger).Run()
					return nil
				},
			},
			{
				Name:      "batch-decode",
				Usage:     "decode a directory of captures without a window",
				UsageText: "scanlight batch-decode --dir <captures> --out <basename>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagDir, Required: true, Usage: "directory holding the captured sequence"},
					&cli.StringFlag{Name: flagOut, Value: "scan", Usage: "basename for the dataset and previews"},
					&cli.UintFlag{Name: flagThreshold, Usage: "brightness threshold, defaults to the configured one"},
				},
				Action: func(c *cli.Context) error {
					return batchDecode(c, cfg, logger)
				},
			},
			{
				Name:  "batch-triangulate",
				Usage: "triangulate a dataset without a window",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagDataSet, Required: true, Usage: "decoded dataset (.sl)"},
					&cli.StringFlag{Name: flagCameraIntrinsics, Required: true, Usage: "camera projection matrix"},
					&cli.StringFlag{Name: flagCameraExtrinsics, Usage: "camera view matrix"},
					&cli.StringFlag{Name: flagProjectorIntrinsics, Required: true, Usage: "projector projection matrix"},
					&cli.StringFlag{Name: flagProjectorExtrinsics, Usage: "projector view matrix"},
					&cli.Float64Flag{Name: flagThreshold, Usage: "maximum ray distance, defaults to the configured one"},
					&cli.StringFlag{Name: flagWorldMap, Value: "output.raw", Usage: "world map destination"},
					&cli.StringFlag{Name: flagPCD, Usage: "optional point cloud destination"},
				},
				Action: func(c *cli.Context) error {
					return batchTriangulate(c, cfg, logger)
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func runDecodeApp(cfg *config.Config, logger *zap.SugaredLogger) error {
	s, err := session.NewDecodeSession(cfg, logger)
	if err != nil {
		return err
	}
	ui.NewDecodeApp(app.New(), s, cfg, logger).Run()
	return nil
}

func batchDecode(c *cli.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	if c.IsSet(flagThreshold) {
		t := c.Uint(flagThreshold)
		if t > 255 {
			return errors.Errorf("threshold %d out of range [0, 255]", t)
		}
		cfg.SetThreshold(uint8(t))
	}

	s, err := session.NewDecodeSession(cfg, logger)
	if err != nil {
		return err
	}
	if err := s.DropPaths([]string{c.String(flagDir)}); err != nil {
		return err
	}
	ds := s.Decoder.DataSet()
	if ds == nil {
		return errors.Wrapf(session.ErrNoData, "no captures in %s", c.String(flagDir))
	}
	logger.Infow("decoded", "active", ds.ActiveCount(), "of", ds.CameraWidth*ds.CameraHeight)
	return s.Save(c.String(flagOut))
}

func batchTriangulate(c *cli.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	if c.IsSet(flagThreshold) {
		cfg.SetDistanceThreshold(c.Float64(flagThreshold))
	}

	s, err := session.NewTriangulateSession(cfg, logger)
	if err != nil {
		return err
	}
	if err := s.LoadDataSet(c.String(flagDataSet)); err != nil {
		return err
	}
	s.LoadCameraIntrinsics(c.String(flagCameraIntrinsics))
	s.LoadCameraExtrinsics(c.String(flagCameraExtrinsics))
	s.LoadProjectorIntrinsics(c.String(flagProjectorIntrinsics))
	s.LoadProjectorExtrinsics(c.String(flagProjectorExtrinsics))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := s.Triangulate(ctx); err != nil {
		return err
	}
	if err := s.SaveWorldMap(c.String(flagWorldMap)); err != nil {
		return err
	}
	if path := c.String(flagPCD); path != "" {
		return s.SavePCD(path)
	}
	return nil
}
