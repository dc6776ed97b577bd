package server

import (
	"github.com/labstack/echo-contrib/echoprometheus"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echoprometheus.NewHandler())
	s.echo.GET("/version", s.handleVersion)

	api := s.echo.Group("/api")

	// Projects
	api.POST("/projects", s.handleCreateProject)
	api.GET("/projects", s.handleListProjects)
	api.GET("/projects/:id", s.handleGetProject)
	api.PUT("/projects/:id", s.handleUpdateProject)
	api.DELETE("/projects/:id", s.handleDeleteProject)

	// Epics
	api.POST("/projects/:id/epics", s.handleCreateEpic)
	api.GET("/projects/:id/epics", s.handleListEpics)
	api.GET("/epics/:id", s.handleGetEpic)
	api.PUT("/epics/:id", s.handleUpdateEpic)
	api.DELETE("/epics/:id", s.handleDeleteEpic)

	// Stories
	api.POST("/projects/:id/stories", s.handleCreateStory)
	api.GET("/projects/:id/stories", s.handleListStories)
	api.GET("/stories/:id", s.handleGetStory)
	api.PUT("/stories/:id", s.handleUpdateStory)
	api.POST("/stories/:id/estimate", s.handleSetStoryEstimate)
	api.DELETE("/stories/:id", s.handleDeleteStory)

	// Sprints and the board
	api.POST("/projects/:id/sprints", s.handleCreateSprint)
	api.GET("/projects/:id/sprints", s.handleListSprints)
	api.GET("/sprints/:id", s.handleGetSprint)
	api.PUT("/sprints/:id", s.handleUpdateSprint)
	api.DELETE("/sprints/:id", s.handleDeleteSprint)
	api.GET("/sprints/:id/board", s.handleGetBoard)
	api.POST("/sprints/:id/stories", s.handleAddStoryToSprint)
	api.DELETE("/sprints/:id/stories/:storyID", s.handleRemoveStoryFromSprint)
	api.POST("/sprints/:id/move", s.handleMoveStory)

	// Teams
	api.POST("/teams", s.handleCreateTeam)
	api.GET("/teams", s.handleListTeams)
	api.GET("/teams/:id", s.handleGetTeam)
	api.PUT("/teams/:id", s.handleUpdateTeam)
	api.DELETE("/teams/:id", s.handleDeleteTeam)
	api.POST("/teams/:id/members", s.handleAddTeamMember)
	api.GET("/teams/:id/members", s.handleListTeamMembers)
	api.DELETE("/teams/:id/members/:memberID", s.handleRemoveTeamMember)

	// Live estimation sessions
	api.GET("/decks", s.handleListDecks)
	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions", s.handleListSessions)
	api.GET("/sessions/mine", s.handleMySession)
	api.GET("/sessions/:id", s.handleGetSession)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
	api.POST("/sessions/:id/join", s.handleJoinSession)
	api.POST("/sessions/:id/vote", s.handleCastVote)
	api.POST("/sessions/:id/reveal", s.handleReveal)
	api.POST("/sessions/:id/round", s.handleNextRound)

	// WebSocket fan-out
	s.echo.GET("/ws/sessions/:id", s.handleWebSocket)
}
