package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradecontrol/cmd/backfill"
	"tradecontrol/cmd/run"
	"tradecontrol/src/database"
	"tradecontrol/src/repository"
)

var Version string

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	if err := godotenv.Load(); err != nil {
		logger.WithError(err).Debug("No .env file loaded")
	}
	SetupLogger()
	defer handlePanic()

	app := cli.NewApp()
	app.Name = "tradecontrol"
	app.Usage = "Trading bot control plane"
	app.Version = Version

	app.Commands = []cli.Command{
		runCMD,
		backfillCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runCMD = cli.Command{
		Name:        "run",
		Usage:       "run the full control plane",
		Action:      runAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the strategy engine, risk manager, position synchronizer and API server`,
	}
	backfillCMD = cli.Command{
		Name:        "backfill",
		Usage:       "download OHLCV candle history",
		Action:      backfillAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Download candle history into the candles table`,
	}
)

func runAction(_ *cli.Context) error {
	logger.Info("Starting control plane CMD")

	if err := run.Start(); err != nil {
		logger.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func backfillAction(_ *cli.Context) error {
	logger.Info("Starting backfill CMD")
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	b := backfill.New(
		logger.WithField("cmd", "backfill"),
		repository.NewCandleRepository(),
	)
	if err := b.Start(context.Background()); err != nil {
		logger.WithError(err).Error("Starting backfill cmd")
		return err
	}
	return nil
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error("Application tradecontrol panic")
	}
}
