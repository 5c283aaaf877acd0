package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/model"
)

var notSigned = []model.SignatureStatus{
	model.SignaturePending,
	model.SignatureSent,
	model.SignatureViewed,
	model.SignatureRejected,
	model.SignatureExpired,
	model.SignatureCancelled,
}

func records(statuses ...model.SignatureStatus) []*model.SignatureRecord {
	roles := []model.SignerRole{model.SignerOwner, model.SignerTenant, model.SignerGuarantor}
	out := make([]*model.SignatureRecord, len(statuses))
	for i, st := range statuses {
		out[i] = &model.SignatureRecord{ID: fmt.Sprint(i), SignerType: roles[i%len(roles)], Status: st}
	}
	return out
}

func TestAggregate_SignedCount(t *testing.T) {
	for n := 2; n <= 3; n++ {
		for k := 0; k <= n; k++ {
			for _, other := range notSigned {
				statuses := make([]model.SignatureStatus, n)
				for i := range statuses {
					if i < k {
						statuses[i] = model.SignatureSigned
					} else {
						statuses[i] = other
					}
				}

				got, err := Aggregate(records(statuses...))
				require.NoError(t, err)

				want := model.ContractPartiallySigned
				switch k {
				case 0:
					want = model.ContractSentToSignature
				case n:
					want = model.ContractFullySigned
				}
				assert.Equal(t, want, got, "n=%d k=%d other=%s", n, k, other)
			}
		}
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	base := []model.SignatureStatus{model.SignatureSigned, model.SignatureViewed, model.SignatureExpired}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	want, err := Aggregate(records(base...))
	require.NoError(t, err)
	require.Equal(t, model.ContractPartiallySigned, want)

	for _, p := range perms {
		got, err := Aggregate(records(base[p[0]], base[p[1]], base[p[2]]))
		require.NoError(t, err)
		assert.Equal(t, want, got, "permutation %v", p)
	}
}

func TestAggregate_GuarantorChangesOutcome(t *testing.T) {
	withoutGuarantor, err := Aggregate(records(model.SignatureSigned, model.SignatureSigned))
	require.NoError(t, err)
	assert.Equal(t, model.ContractFullySigned, withoutGuarantor)

	withGuarantor, err := Aggregate(records(model.SignatureSigned, model.SignatureSigned, model.SignatureSent))
	require.NoError(t, err)
	assert.Equal(t, model.ContractPartiallySigned, withGuarantor)
}

func TestAggregate_Invalid(t *testing.T) {
	_, err := Aggregate(nil)
	assert.Error(t, err)

	_, err = Aggregate(records(model.SignatureSigned, model.SignatureStatus("lost")))
	assert.Error(t, err)
}
