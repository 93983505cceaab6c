package door

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"
)

// ScanLoop validates every code read from input, one per line as keyboard-wedge scanners type
// them, until input ends or ctx is cancelled.
// Cancelling never waits on the reader; the reading goroutine exits once input returns.
// Repeat reads of the same code within the cooldown are dropped.
func (s *service) ScanLoop(ctx context.Context, input io.Reader, scannedBy string, onResult func(Result)) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var (
		lastCode string
		lastAt   time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			code := strings.TrimSpace(line)
			if code == "" {
				continue
			}
			now := s.now()
			if code == lastCode && now.Sub(lastAt) < s.cooldown {
				continue
			}
			lastCode, lastAt = code, now

			res, err := s.ValidateQR(ctx, code, scannedBy)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if s.logg != nil {
					s.logg.Error(ctx, "door scan lookup failed", err)
				}
				res = reject(ResultUpdateFailed, "Lookup failed, please scan again")
				lastCode = ""
			}
			if onResult != nil {
				onResult(res)
			}
		}
	}
}
