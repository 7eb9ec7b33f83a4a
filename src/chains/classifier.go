package chains

import (
	"strings"

	"github.com/username/chainfolio/backend/src/logger"
	"github.com/username/chainfolio/backend/src/models"
)

// Classifier maps broker-reported transaction rows to their matching
// semantics. It is a total function: anything it does not recognize becomes
// NEUTRAL so unexpected broker data degrades the run instead of aborting it.
type Classifier struct {
	warned map[string]bool // raw types already warned about this run
}

func NewClassifier() *Classifier {
	return &Classifier{warned: make(map[string]bool)}
}

// Option raw types that close an existing short obligation.
var optionCloseTypes = map[string]bool{
	"bought to cover": true,
	"option assigned": true,
	"option expired":  true,
}

// Classify tags a single transaction. Deterministic and never errors.
func (c *Classifier) Classify(tx models.Transaction) models.ClassifiedTransaction {
	classified := models.ClassifiedTransaction{Transaction: tx, Kind: models.KindNeutral}
	rawType := strings.ToLower(strings.TrimSpace(tx.RawType))

	if rawType == "split" {
		classified.IsSplit = true
		return classified
	}

	switch tx.SecurityFamily {
	case models.FamilyEquity:
		switch {
		case tx.SignedQuantity > 0:
			classified.Kind = models.KindOpen
		case tx.SignedQuantity < 0:
			classified.Kind = models.KindClose
		}
	case models.FamilyOption:
		switch {
		case strings.HasPrefix(rawType, "sold"):
			// A short sale establishes the obligation a later cover,
			// assignment or expiration will close.
			classified.Kind = models.KindOpen
		case optionCloseTypes[rawType]:
			classified.Kind = models.KindClose
		default:
			c.warnOnce(tx.RawType)
		}
	default:
		c.warnOnce(tx.RawType)
	}

	return classified
}

func (c *Classifier) warnOnce(rawType string) {
	if c.warned[rawType] {
		return
	}
	c.warned[rawType] = true
	if logger.L != nil {
		logger.L.Warn("Unrecognized transaction type, classifying as neutral", "rawType", rawType)
	}
}
