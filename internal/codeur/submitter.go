package codeur

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// BrowserConfig configures the browser session used to publish offers.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless"`
	// StorageState is a Playwright storage state file holding an authenticated session.
	StorageState string `mapstructure:"storage-state"`
}

// OfferSubmitter publishes offers by driving a Chromium session.
// Every submission owns its own browser, torn down on every exit path.
type OfferSubmitter struct {
	cfg    BrowserConfig
	logger *zap.Logger
}

var _ Submitter = (*OfferSubmitter)(nil)

// NewOfferSubmitter creates a submitter; the storage state file must exist.
func NewOfferSubmitter(cfg BrowserConfig, log *zap.Logger) (*OfferSubmitter, error) {
	if cfg.StorageState == "" {
		return nil, errors.New("browser storage state file is not configured")
	}
	if _, err := os.Stat(cfg.StorageState); err != nil {
		return nil, fmt.Errorf("storage state %q is missing or expired, import fresh cookies first: %w", cfg.StorageState, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OfferSubmitter{cfg: cfg, logger: log.Named("submitter")}, nil
}

// Submit validates and publishes the offer.
func (s *OfferSubmitter) Submit(ctx context.Context, offer Offer) SubmitResult {
	if err := offer.Validate(); err != nil {
		return SubmitResult{Message: fmt.Sprintf("invalid offer: %v", err)}
	}
	if err := ctx.Err(); err != nil {
		return SubmitResult{Message: err.Error()}
	}

	log := s.logger.With(zap.String("reference", offer.ProjectURL))
	log.Info("submitting offer", zap.Int("amount", offer.Amount), zap.Int("duration", offer.Duration))

	if err := s.submit(offer); err != nil {
		log.Warn("offer submission failed", zap.Error(err))
		return SubmitResult{Message: fmt.Sprintf("failed to apply for project: %v", err)}
	}

	log.Info("offer submitted")
	return SubmitResult{Success: true, Message: "offer submitted"}
}

func (s *OfferSubmitter) submit(offer Offer) (err error) {
	session, err := s.open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.close(); closeErr != nil {
			s.logger.Warn("closing browser session", zap.Error(closeErr))
		}
	}()

	return fillOffer(&pageDriver{page: session.page}, offer)
}

type browserSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

func (s *OfferSubmitter) open() (*browserSession, error) {
	session := &browserSession{}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	session.pw = pw

	session.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.cfg.Headless),
	})
	if err != nil {
		_ = session.close()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	session.context, err = session.browser.NewContext(playwright.BrowserNewContextOptions{
		StorageStatePath: playwright.String(s.cfg.StorageState),
	})
	if err != nil {
		_ = session.close()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	session.page, err = session.context.NewPage()
	if err != nil {
		_ = session.close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	return session, nil
}

// close releases page, context, browser and driver in that order and reports every failure.
func (b *browserSession) close() error {
	var errs []error
	if b.page != nil {
		errs = append(errs, b.page.Close())
		b.page = nil
	}
	if b.context != nil {
		errs = append(errs, b.context.Close())
		b.context = nil
	}
	if b.browser != nil {
		errs = append(errs, b.browser.Close())
		b.browser = nil
	}
	if b.pw != nil {
		errs = append(errs, b.pw.Stop())
		b.pw = nil
	}
	return errors.Join(errs...)
}

type pageDriver struct {
	page playwright.Page
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (d *pageDriver) Open(url string) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateNetworkidle})
	return err
}

func (d *pageDriver) Click(selector string) error {
	return d.page.Locator(selector).First().Click()
}

func (d *pageDriver) WaitVisible(selector string, timeout time.Duration) error {
	return d.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: millis(timeout),
	})
}

func (d *pageDriver) Check(selector string) error {
	return d.page.Locator(selector).Check()
}

func (d *pageDriver) Fill(selector, value string) error {
	return d.page.Locator(selector).Fill(value)
}

func (d *pageDriver) Select(selector, value string) error {
	_, err := d.page.Locator(selector).SelectOption(playwright.SelectOptionValues{Values: playwright.StringSlice(value)})
	return err
}

func (d *pageDriver) Settle() error {
	return d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateNetworkidle})
}

func (d *pageDriver) ClickAndWaitResponse(selector string, match func(method, url string, status int) bool, timeout time.Duration) error {
	_, err := d.page.ExpectEvent("response", func() error {
		return d.page.Locator(selector).Click()
	}, playwright.PageExpectEventOptions{
		Predicate: func(resp playwright.Response) bool {
			return match(resp.Request().Method(), resp.URL(), resp.Status())
		},
		Timeout: millis(timeout),
	})
	return err
}
