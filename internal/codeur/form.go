package codeur

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	openOfferSelector   = `a:text("Faire une offre")`
	amountSelector      = "#offer_amount"
	pricingModeSelector = "#offer_pricing_mode"
	durationSelector    = "#offer_duration"
	messageSelector     = "#offer_comments_attributes_0_content"
	levelStandardInput  = "input#offer_level_standard"
	levelSuperInput     = "input#offer_level_super"
	publishSelector     = `input[type="submit"][value="Publier mon offre"]`
	confirmationMarker  = `#project-actions .text-warning:has-text("Offre déposée")`

	formTimeout   = 20 * time.Second
	submitTimeout = 30 * time.Second
)

// formDriver is the subset of browser actions the offer workflow needs.
type formDriver interface {
	Open(url string) error
	Click(selector string) error
	WaitVisible(selector string, timeout time.Duration) error
	Check(selector string) error
	Fill(selector, value string) error
	Select(selector, value string) error
	Settle() error
	// ClickAndWaitResponse clicks selector and waits for a response accepted by match.
	ClickAndWaitResponse(selector string, match func(method, url string, status int) bool, timeout time.Duration) error
}

func levelSelector(level string) string {
	if level == LevelSuper {
		return levelSuperInput
	}
	return levelStandardInput
}

func isOfferSubmission(method, url string, status int) bool {
	return method == "POST" && strings.Contains(url, "/offers") && status < 400
}

// fillOffer walks the offer form: open it, fill every field, publish and wait for the confirmation.
func fillOffer(driver formDriver, offer Offer) error {
	if err := driver.Open(offer.ProjectURL); err != nil {
		return fmt.Errorf("open project page: %w", err)
	}
	if err := driver.Click(openOfferSelector); err != nil {
		return fmt.Errorf("open offer form: %w", err)
	}

	for _, selector := range []string{amountSelector, pricingModeSelector, durationSelector, messageSelector, levelStandardInput, levelSuperInput} {
		if err := driver.WaitVisible(selector, formTimeout); err != nil {
			return fmt.Errorf("wait for %s: %w", selector, err)
		}
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"level", func() error { return driver.Check(levelSelector(offer.Level)) }},
		{"amount", func() error { return driver.Fill(amountSelector, strconv.Itoa(offer.Amount)) }},
		{"pricing mode", func() error { return driver.Select(pricingModeSelector, offer.PricingMode) }},
		{"duration", func() error { return driver.Fill(durationSelector, strconv.Itoa(offer.Duration)) }},
		{"message", func() error { return driver.Fill(messageSelector, offer.Message) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("fill %s: %w", step.name, err)
		}
		if err := driver.Settle(); err != nil {
			return fmt.Errorf("settle after %s: %w", step.name, err)
		}
	}

	if err := driver.ClickAndWaitResponse(publishSelector, isOfferSubmission, submitTimeout); err != nil {
		return fmt.Errorf("publish offer: %w", err)
	}
	if err := driver.WaitVisible(confirmationMarker, submitTimeout); err != nil {
		return fmt.Errorf("offer confirmation not shown: %w", err)
	}

	return nil
}
