package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"messenger/internal/models"
)

func TestAggregateStatus(t *testing.T) {
	now := time.Now()

	require.Equal(t, models.StatusSending, aggregateStatus(nil))
	require.Equal(t, models.StatusRead, aggregateStatus([]models.Receipt{
		{RecipientUserID: 2, DeliveredAt: &now, ReadAt: &now},
	}))
	require.Equal(t, models.StatusDelivered, aggregateStatus([]models.Receipt{
		{RecipientUserID: 2, DeliveredAt: &now, ReadAt: &now},
		{RecipientUserID: 3, DeliveredAt: &now},
	}))
	require.Equal(t, models.StatusSending, aggregateStatus([]models.Receipt{
		{RecipientUserID: 2, DeliveredAt: &now},
		{RecipientUserID: 3},
	}))
}
