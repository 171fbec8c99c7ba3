package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/rewired-gh/polysleuth/internal/detector"
	"github.com/rewired-gh/polysleuth/internal/logger"
	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/server"
	"github.com/rewired-gh/polysleuth/internal/signals"
	"github.com/rewired-gh/polysleuth/internal/telegram"
)

func runIndex(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := configFlag(fs)
	walletList := fs.String("wallets", "", "Comma-separated wallet addresses (defaults to detector.watchlist)")
	_ = fs.Parse(args)

	a, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	wallets, err := walletsOrWatchlist(*walletList, a.cfg.Detector.Watchlist)
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return errors.New("no wallets given and detector.watchlist is empty")
	}

	_, err = a.indexer().Run(ctx, wallets)
	return err
}

func runDetect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	configPath := configFlag(fs)
	walletList := fs.String("wallets", "", "Comma-separated wallet addresses to score")
	all := fs.Bool("all", false, "Score every wallet in the store")
	index := fs.Bool("index", false, "Fetch fresh activity for --wallets before scoring")
	save := fs.Bool("save", false, "Persist reports to the store")
	notify := fs.Bool("notify", false, "Send flagged wallets to Telegram")
	limit := fs.Int("limit", 0, "Show at most this many rows (0 shows all)")
	minRisk := fs.String("min-risk", "LOW", "Hide rows below this risk level")
	_ = fs.Parse(args)

	floor, err := models.ParseRiskLevel(*minRisk)
	if err != nil {
		return err
	}

	a, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	var reports []*models.WalletReport
	switch {
	case *all:
		reports, err = a.detector.AnalyzeAll(ctx)
	case *walletList != "":
		var wallets []string
		wallets, err = models.ParseAddressList(*walletList)
		if err != nil {
			return err
		}
		if *index {
			if _, err := a.indexer().Run(ctx, wallets); err != nil {
				return err
			}
		}
		reports, err = a.detector.AnalyzeWallets(ctx, wallets)
	default:
		return errors.New("either --wallets or --all is required")
	}
	if err != nil {
		return err
	}

	detector.SortByScore(reports)
	printReports(os.Stdout, detector.TopK(detector.Flagged(reports, floor), *limit))

	if *save {
		runID := uuid.NewString()
		if err := a.store.SaveReports(ctx, runID, reports); err != nil {
			return err
		}
		logger.Info("Saved %d reports (run %s)", len(reports), runID)
	}

	if *notify {
		tg, err := a.telegram()
		if err != nil {
			return err
		}
		if tg == nil {
			logger.Warn("--notify given but telegram.enabled is false")
			return nil
		}
		n, err := tg.Send(reports, a.cfg.TelegramMinRisk())
		if err != nil {
			return fmt.Errorf("failed to send Telegram notification: %w", err)
		}
		logger.Info("Sent Telegram notification with %d wallets", n)
	}
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := configFlag(fs)
	addr := fs.String("addr", "", "Listen address (overrides server.addr)")
	_ = fs.Parse(args)

	a, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if *addr == "" {
		*addr = a.cfg.Server.Addr
	}

	tg, err := a.telegram()
	if err != nil {
		return err
	}
	if tg != nil {
		tg.ListenForCommands(ctx, func(ctx context.Context, k int) ([]*models.WalletReport, error) {
			records, err := a.store.TopReports(ctx, k, models.RiskLow)
			if err != nil {
				return nil, err
			}
			reports := make([]*models.WalletReport, len(records))
			for i := range records {
				reports[i] = &records[i].WalletReport
			}
			return reports, nil
		})
	}

	if a.cfg.Detector.ScanInterval > 0 {
		go a.scanLoop(ctx, tg)
	}

	return server.New(a.detector, a.store).Run(ctx, *addr)
}

// scanLoop periodically re-indexes the watchlist, scores every stored wallet
// and saves the results, alerting on the first failure of a streak.
func (a *app) scanLoop(ctx context.Context, tg *telegram.Client) {
	logger.Info("Starting scheduled scans (interval: %v, watchlist: %d wallets)",
		a.cfg.Detector.ScanInterval, len(a.cfg.Detector.Watchlist))

	ticker := time.NewTicker(a.cfg.Detector.ScanInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	handleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Scan failed: %v", err)
			if consecutiveFailures == 1 && tg != nil {
				if sendErr := tg.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && tg != nil {
			if sendErr := tg.SendRecovery(consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	handleResult(a.scan(ctx, tg))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handleResult(a.scan(ctx, tg))
		}
	}
}

func (a *app) scan(ctx context.Context, tg *telegram.Client) error {
	start := time.Now()
	if len(a.cfg.Detector.Watchlist) > 0 {
		wallets, err := models.ParseAddressList(strings.Join(a.cfg.Detector.Watchlist, ","))
		if err != nil {
			return err
		}
		if _, err := a.indexer().Run(ctx, wallets); err != nil {
			return fmt.Errorf("failed to index watchlist: %w", err)
		}
	}

	reports, err := a.detector.AnalyzeAll(ctx)
	if err != nil {
		return err
	}
	detector.SortByScore(reports)

	if err := a.store.SaveReports(ctx, uuid.NewString(), reports); err != nil {
		return err
	}

	flagged := detector.Flagged(reports, a.cfg.TelegramMinRisk())
	logger.Info("Scan completed in %v: %d wallets, %d at %s or above",
		time.Since(start).Round(time.Millisecond), len(reports), len(flagged), a.cfg.TelegramMinRisk())

	if tg != nil && len(flagged) > 0 {
		if _, err := tg.Send(flagged, a.cfg.TelegramMinRisk()); err != nil {
			logger.Error("Failed to send Telegram notification: %v", err)
		}
	}
	return nil
}

func runValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := configFlag(fs)
	insiderList := fs.String("insiders", "", "Comma-separated known insider wallets")
	normalList := fs.String("normals", "", "Comma-separated control wallets")
	index := fs.Bool("index", false, "Fetch fresh activity for both groups first")
	_ = fs.Parse(args)

	insiders, err := models.ParseAddressList(*insiderList)
	if err != nil {
		return err
	}
	normals, err := models.ParseAddressList(*normalList)
	if err != nil {
		return err
	}
	if len(insiders) == 0 || len(normals) == 0 {
		return errors.New("both --insiders and --normals are required")
	}

	a, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if *index {
		if _, err := a.indexer().Run(ctx, append(append([]string{}, insiders...), normals...)); err != nil {
			return err
		}
	}

	insiderReports, err := a.detector.AnalyzeWallets(ctx, insiders)
	if err != nil {
		return err
	}
	normalReports, err := a.detector.AnalyzeWallets(ctx, normals)
	if err != nil {
		return err
	}

	v := detector.Validate(insiderReports, normalReports)
	printValidation(os.Stdout, v)
	if v.Narrow() {
		logger.Warn("Mean score separation %.4f is at or below %.2f, calibration needs review",
			v.Separation, detector.NarrowSeparation)
	}
	return nil
}

func walletsOrWatchlist(list string, watchlist []string) ([]string, error) {
	if list == "" {
		list = strings.Join(watchlist, ",")
	}
	return models.ParseAddressList(list)
}

var signalColumns = map[string]string{
	signals.NameWalletFreshness:  "FRESH",
	signals.NameOutcomeCertainty: "CERT",
	signals.NameEntryTiming:      "TIMING",
	signals.NameMarketFocus:      "FOCUS",
	signals.NamePositionSize:     "SIZE",
	signals.NameSurgicalBehavior: "SURG",
}

func printReports(w io.Writer, reports []*models.WalletReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{"WALLET", "RISK", "SCORE", "VOLUME", "TRADES", "MKTS"}
	for _, name := range signals.Names {
		header = append(header, signalColumns[name])
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, r := range reports {
		row := []string{
			models.ShortAddress(r.Wallet),
			string(r.RiskLevel),
			fmt.Sprintf("%.4f", r.CompositeScore),
			"$" + humanize.CommafWithDigits(r.Volume, 2),
			fmt.Sprint(r.TradeCount),
			fmt.Sprint(r.MarketCount),
		}
		for _, name := range signals.Names {
			s, _ := r.Signal(name)
			row = append(row, fmt.Sprintf("%.2f", s.Score))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	_ = tw.Flush()

	if len(reports) == 0 {
		fmt.Fprintln(w, "No wallets to report.")
	}
}

func printValidation(w io.Writer, v detector.Validation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tWALLETS\tMEAN\tSTDDEV\tHIGH+\tCRITICAL\tHIGH\tMEDIUM\tLOW")
	for _, g := range []struct {
		name string
		s    detector.GroupSummary
	}{{"insiders", v.Insiders}, {"normals", v.Normals}} {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\t%.4f\t%d\t%d\t%d\t%d\t%d\n",
			g.name, g.s.Wallets, g.s.MeanScore, g.s.StdDev, g.s.HighOrMore,
			g.s.ByRisk[models.RiskCritical], g.s.ByRisk[models.RiskHigh],
			g.s.ByRisk[models.RiskMedium], g.s.ByRisk[models.RiskLow])
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nSeparation: %.4f\n", v.Separation)
}
