package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/kmanager/internal/audit/domain"
	"github.com/smallbiznis/kmanager/internal/audit/repository"
	obscontext "github.com/smallbiznis/kmanager/internal/observability/context"
	"github.com/smallbiznis/kmanager/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (auditdomain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide()}), db
}

func TestAuditLogResolvesActorFromContext(t *testing.T) {
	svc, db := setupService(t)
	orgID := snowflake.ID(7)

	ctx := obscontext.WithActor(context.Background(), auditdomain.ActorTypeCLI, "ops")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	targetID := "123"
	require.NoError(t, svc.AuditLog(ctx, &orgID, "", nil, auditdomain.ActionContractBilled, "contract", &targetID, map[string]any{
		"document_id": "456",
	}))

	var entry auditdomain.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, auditdomain.ActorTypeCLI, entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "ops", *entry.ActorID)
	assert.Equal(t, "456", entry.Metadata["document_id"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := setupService(t)
	err := svc.AuditLog(context.Background(), nil, "", nil, " ", "contract", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginates(t *testing.T) {
	svc, _ := setupService(t)
	orgID := snowflake.ID(7)
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(context.Background(), &orgID, auditdomain.ActorTypeSystem, nil, auditdomain.ActionDocumentCreated, "document", nil, nil))
	}

	ctx := orgcontext.WithOrgID(context.Background(), orgID)
	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	first, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)

	req.PageToken = first.NextPageToken
	second, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)

	_, err = svc.List(context.Background(), req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)
}
