package database

import (
	"context"
	"testing"

	"github.com/ParashDev/sprintor-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestProject(t *testing.T, repo *ProjectRepository) *domain.Project {
	t.Helper()
	project, err := repo.Create(context.Background(), "Payments", "checkout revamp")
	require.NoError(t, err)
	return project
}

func TestProjectRepository_Create(t *testing.T) {
	repo := NewProjectRepository(setupTestDB(t))

	project := createTestProject(t, repo)

	assert.NotEqual(t, uuid.Nil, project.ID)
	assert.Equal(t, "Payments", project.Name)
	assert.Equal(t, "checkout revamp", project.Description)
	assert.Equal(t, domain.ProjectStatusActive, project.Status)
	assert.False(t, project.CreatedAt.IsZero())
}

func TestProjectRepository_GetByID(t *testing.T) {
	repo := NewProjectRepository(setupTestDB(t))
	ctx := context.Background()

	created := createTestProject(t, repo)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Name, got.Name)
}

func TestProjectRepository_GetByID_NotFound(t *testing.T) {
	repo := NewProjectRepository(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestProjectRepository_List(t *testing.T) {
	repo := NewProjectRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, "alpha", "")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "beta", "")
	require.NoError(t, err)

	projects, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestProjectRepository_Update(t *testing.T) {
	repo := NewProjectRepository(setupTestDB(t))
	ctx := context.Background()

	created := createTestProject(t, repo)

	updated, err := repo.Update(ctx, created.ID, "Payments v2", "new scope", domain.ProjectStatusOnHold)
	require.NoError(t, err)
	assert.Equal(t, "Payments v2", updated.Name)
	assert.Equal(t, "new scope", updated.Description)
	assert.Equal(t, domain.ProjectStatusOnHold, updated.Status)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
}

func TestProjectRepository_Update_NotFound(t *testing.T) {
	repo := NewProjectRepository(setupTestDB(t))

	_, err := repo.Update(context.Background(), uuid.New(), "x", "", domain.ProjectStatusActive)
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestProjectRepository_Delete(t *testing.T) {
	repo := NewProjectRepository(setupTestDB(t))
	ctx := context.Background()

	created := createTestProject(t, repo)

	require.NoError(t, repo.Delete(ctx, created.ID))

	_, err := repo.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestProjectRepository_Delete_NotFound(t *testing.T) {
	repo := NewProjectRepository(setupTestDB(t))

	err := repo.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestProjectRepository_DeleteCascades(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	projects := NewProjectRepository(pool)
	epics := NewEpicRepository(pool)
	stories := NewStoryRepository(pool)

	project := createTestProject(t, projects)
	epic, err := epics.Create(ctx, project.ID, "Checkout", "", "#ff0000")
	require.NoError(t, err)
	story, err := stories.Create(ctx, &domain.Story{
		ProjectID: project.ID,
		EpicID:    &epic.ID,
		Title:     "login form",
		Priority:  domain.PriorityMedium,
	})
	require.NoError(t, err)

	require.NoError(t, projects.Delete(ctx, project.ID))

	_, err = epics.GetByID(ctx, epic.ID)
	assert.ErrorIs(t, err, domain.ErrEpicNotFound)
	_, err = stories.GetByID(ctx, story.ID)
	assert.ErrorIs(t, err, domain.ErrStoryNotFound)
}
