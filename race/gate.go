package race

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aarunya/kartapi/models"
)

// QRTokenPrefix is the reserved namespace for event wristband QR tokens.
// Anything else scanned or typed is treated as a registration code or
// enrollment number.
const QRTokenPrefix = "AKX-"

// Lookup resolves a scanned or typed identifier to a registration.
// QR tokens match exactly; codes and enrollment numbers match
// case-insensitively. Found-but-unpaid riders fail with ErrIneligible.
func (e *Engine) Lookup(ctx context.Context, raw string) (*models.Registration, error) {
	term := strings.TrimSpace(raw)
	if term == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	var (
		reg *models.Registration
		err error
	)
	if strings.HasPrefix(term, QRTokenPrefix) {
		reg, err = e.store.RegistrationByToken(ctx, term)
	} else {
		reg, err = e.store.RegistrationByCode(ctx, term)
		if err != nil && errors.Is(err, ErrNotFound) {
			reg, err = e.store.RegistrationByEnrollment(ctx, term)
		}
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, term)
		}
		return nil, storeErr(err)
	}
	if !reg.Eligible() {
		return nil, fmt.Errorf("%w: %s", ErrIneligible, reg.FullName)
	}
	return reg, nil
}

// Scan is the check-in path: resolve the identifier, then enqueue the
// rider for the day.
func (e *Engine) Scan(ctx context.Context, raw string, day int) (*models.RaceEntry, error) {
	reg, err := e.Lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	return e.Enqueue(ctx, reg, day)
}
