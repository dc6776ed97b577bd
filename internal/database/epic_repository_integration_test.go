package database

import (
	"context"
	"testing"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpicRepository_Create(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	project := createTestProject(t, NewProjectRepository(pool))
	repo := NewEpicRepository(pool)

	epic, err := repo.Create(ctx, project.ID, "Checkout", "payment flow", "#ff0000")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, epic.ID)
	assert.Equal(t, project.ID, epic.ProjectID)
	assert.Equal(t, "Checkout", epic.Name)
	assert.Equal(t, "#ff0000", epic.Color)
	assert.Equal(t, domain.EpicStatusOpen, epic.Status)
}

func TestEpicRepository_Create_ProjectMissing(t *testing.T) {
	repo := NewEpicRepository(setupTestDB(t))

	// Foreign key violation surfaces as an error
	_, err := repo.Create(context.Background(), uuid.New(), "Checkout", "", "#ff0000")
	assert.Error(t, err)
}

func TestEpicRepository_ListByProject(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	projects := NewProjectRepository(pool)
	repo := NewEpicRepository(pool)

	project := createTestProject(t, projects)
	other, err := projects.Create(ctx, "other", "")
	require.NoError(t, err)

	_, err = repo.Create(ctx, project.ID, "Checkout", "", "#ff0000")
	require.NoError(t, err)
	_, err = repo.Create(ctx, project.ID, "Onboarding", "", "#00ff00")
	require.NoError(t, err)
	_, err = repo.Create(ctx, other.ID, "Unrelated", "", "#0000ff")
	require.NoError(t, err)

	epics, err := repo.ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, epics, 2)
}

func TestEpicRepository_Update(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	project := createTestProject(t, NewProjectRepository(pool))
	repo := NewEpicRepository(pool)

	epic, err := repo.Create(ctx, project.ID, "Checkout", "", "#ff0000")
	require.NoError(t, err)

	updated, err := repo.Update(ctx, epic.ID, "Checkout v2", "reworked", "#00ff00", domain.EpicStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, "Checkout v2", updated.Name)
	assert.Equal(t, "#00ff00", updated.Color)
	assert.Equal(t, domain.EpicStatusInProgress, updated.Status)
}

func TestEpicRepository_Update_NotFound(t *testing.T) {
	repo := NewEpicRepository(setupTestDB(t))

	_, err := repo.Update(context.Background(), uuid.New(), "x", "", "#ff0000", domain.EpicStatusOpen)
	assert.ErrorIs(t, err, domain.ErrEpicNotFound)
}

func TestEpicRepository_Delete_DetachesStories(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	project := createTestProject(t, NewProjectRepository(pool))
	epics := NewEpicRepository(pool)
	stories := NewStoryRepository(pool)

	epic, err := epics.Create(ctx, project.ID, "Checkout", "", "#ff0000")
	require.NoError(t, err)
	story, err := stories.Create(ctx, &domain.Story{
		ProjectID: project.ID,
		EpicID:    &epic.ID,
		Title:     "login form",
		Priority:  domain.PriorityMedium,
	})
	require.NoError(t, err)

	require.NoError(t, epics.Delete(ctx, epic.ID))

	// Deleting an epic orphans its stories instead of deleting them
	got, err := stories.GetByID(ctx, story.ID)
	require.NoError(t, err)
	assert.Nil(t, got.EpicID)
}
