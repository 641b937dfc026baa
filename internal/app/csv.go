/**
 * @description
 * This file decodes uploaded payout CSV files into PayoutRow values. The
 * expected format is a header line `recipient_wallet_id,amount` followed by one
 * row per planned transfer, with amounts in minor currency units. Decoding is
 * strict: a malformed row rejects the whole upload, because row indices become
 * immutable once the batch is materialized.
 *
 * @dependencies
 * - encoding/csv, fmt, io, strconv, strings: Standard Go libraries.
 * - github.com/google/uuid: For recipient wallet ids.
 * - internal/domain: For the PayoutRow model.
 */

package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/ledger-service/internal/domain"
)

var ErrEmptyPayoutFile = errors.New("payout file contains no rows")

const (
	csvHeaderRecipient = "recipient_wallet_id"
	csvHeaderAmount    = "amount"
)

// ParsePayoutRows decodes a payout CSV upload. The header must name the
// recipient_wallet_id and amount columns; column order is not significant.
func ParsePayoutRows(r io.Reader) ([]domain.PayoutRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyPayoutFile
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	recipientCol, amountCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case csvHeaderRecipient:
			recipientCol = i
		case csvHeaderAmount:
			amountCol = i
		}
	}
	if recipientCol < 0 || amountCol < 0 {
		return nil, fmt.Errorf("csv header must contain %q and %q columns", csvHeaderRecipient, csvHeaderAmount)
	}

	var rows []domain.PayoutRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		recipientID, err := uuid.Parse(strings.TrimSpace(record[recipientCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid recipient wallet id %q", line, record[recipientCol])
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(record[amountCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid amount %q", line, record[amountCol])
		}
		if amount <= 0 {
			return nil, fmt.Errorf("line %d: amount must be positive, got %d", line, amount)
		}

		rows = append(rows, domain.PayoutRow{RecipientWalletID: recipientID, Amount: amount})
	}

	if len(rows) == 0 {
		return nil, ErrEmptyPayoutFile
	}
	return rows, nil
}
