package service

import (
	"errors"
	"fmt"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

var errNoSignatures = errors.New("contract has no signature records")

// Aggregate maps the set of a contract's signature records to the contract
// status they imply. Only signed records count; rejected, expired and
// cancelled records are simply not signed.
func Aggregate(records []*model.SignatureRecord) (model.ContractStatus, error) {
	if len(records) == 0 {
		return "", errNoSignatures
	}

	signed := 0
	for _, rec := range records {
		switch rec.Status {
		case model.SignatureSigned:
			signed++
		case model.SignaturePending, model.SignatureSent, model.SignatureViewed,
			model.SignatureRejected, model.SignatureExpired, model.SignatureCancelled:
		default:
			return "", fmt.Errorf("record %s has unknown status %q", rec.ID, rec.Status)
		}
	}

	switch {
	case signed == 0:
		return model.ContractSentToSignature, nil
	case signed < len(records):
		return model.ContractPartiallySigned, nil
	default:
		return model.ContractFullySigned, nil
	}
}
