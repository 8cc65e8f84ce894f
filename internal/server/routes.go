package server

// setupRoutes registers the full endpoint surface of spec.md §6.
func (s *Server) setupRoutes() {
	r := s.router

	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/status", s.handleStatusReport).Methods("GET")
	r.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Identity
	r.HandleFunc("/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/join", s.handleJoinRequest).Methods("POST")
	r.HandleFunc("/join", s.handleJoinList).Methods("GET")
	r.HandleFunc("/join/{id}", s.handleJoinStatus).Methods("GET")
	r.HandleFunc("/join/{id}/approve", s.handleJoinApprove).Methods("POST")
	r.HandleFunc("/join/{id}/reject", s.handleJoinReject).Methods("POST")
	r.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	r.HandleFunc("/admin/keys", s.handleAdminKeys).Methods("GET")

	// Messaging — legacy top-level
	r.HandleFunc("/send", s.handleSend).Methods("POST")
	r.HandleFunc("/inbox", s.handleInbox).Methods("GET")
	r.HandleFunc("/inbox/{id}/read", s.handleInboxRead).Methods("POST")
	r.HandleFunc("/history", s.handleHistory).Methods("GET")

	// Messaging — conversations
	r.HandleFunc("/conversations", s.handleCreateConversation).Methods("POST")
	r.HandleFunc("/conversations", s.handleListConversations).Methods("GET")
	r.HandleFunc("/conversations/{id}", s.handleGetConversation).Methods("GET")
	r.HandleFunc("/conversations/{id}/send", s.handleConversationSend).Methods("POST")
	r.HandleFunc("/conversations/{id}/invite", s.handleConversationInvite).Methods("POST")
	r.HandleFunc("/conversations/{id}/leave", s.handleConversationLeave).Methods("POST")
	r.HandleFunc("/conversations/{id}/messages", s.handleConversationMessages).Methods("GET")

	// Files
	r.HandleFunc("/files/upload", s.handleUpload).Methods("POST")
	r.HandleFunc("/files", s.handleFileList).Methods("GET")
	r.HandleFunc("/files/stats", s.handleFileStats).Methods("GET")
	r.HandleFunc("/files/{id}", s.handleFileInfo).Methods("GET")
	r.HandleFunc("/files/{id}/{name}", s.handleFileDownload).Methods("GET")
	r.HandleFunc("/files/{id}", s.handleFileDelete).Methods("DELETE")
	r.HandleFunc("/send-file", s.handleSendFile).Methods("POST")

	// Tasks
	r.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	r.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	r.HandleFunc("/tasks/my/active", s.handleMyActiveTasks).Methods("GET")
	r.HandleFunc("/tasks/my/feed", s.handleMyTaskFeed).Methods("GET")
	r.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	r.HandleFunc("/tasks/{id}", s.handleUpdateTask).Methods("PATCH")
	r.HandleFunc("/tasks/{id}/claim", s.handleClaimTask).Methods("POST")
	r.HandleFunc("/tasks/{id}/start", s.handleStartTask).Methods("POST")
	r.HandleFunc("/tasks/{id}/complete", s.handleCompleteTask).Methods("POST")
	r.HandleFunc("/tasks/{id}/block", s.handleBlockTask).Methods("POST")
	r.HandleFunc("/tasks/{id}/comments", s.handleAddComment).Methods("POST")
	r.HandleFunc("/tasks/{id}/dependencies", s.handleAddDependency).Methods("POST")
	r.HandleFunc("/tasks/{id}/dependencies", s.handleGetDependencies).Methods("GET")
	r.HandleFunc("/tasks/{id}/dependencies/{depId}", s.handleRemoveDependency).Methods("DELETE")
	r.HandleFunc("/board", s.handleBoard).Methods("GET")

	// Projects
	r.HandleFunc("/projects", s.handleCreateProject).Methods("POST")
	r.HandleFunc("/projects", s.handleListProjects).Methods("GET")
	r.HandleFunc("/projects/{id}", s.handleGetProject).Methods("GET")
	r.HandleFunc("/projects/{id}/members", s.handleAddProjectMember).Methods("POST")
	r.HandleFunc("/projects/{id}/milestones", s.handleCreateMilestone).Methods("POST")
	r.HandleFunc("/projects/{id}/milestones", s.handleListMilestones).Methods("GET")

	// Revisions ("agent git")
	r.HandleFunc("/git/repos", s.handleCreateRepo).Methods("POST")
	r.HandleFunc("/git/repos", s.handleListRepos).Methods("GET")
	r.HandleFunc("/git/repos/{name}", s.handleGetRepo).Methods("GET")
	r.HandleFunc("/git/repos/{name}/commit", s.handleCommit).Methods("POST")
	r.HandleFunc("/git/repos/{name}/log", s.handleLog).Methods("GET")
	r.HandleFunc("/git/repos/{name}/tree", s.handleTree).Methods("GET")
	r.HandleFunc("/git/repos/{name}/files/{path:.*}", s.handleReadFile).Methods("GET")
	r.HandleFunc("/git/repos/{name}/diff/{commit}", s.handleDiff).Methods("GET")

	// Public browse surface
	r.HandleFunc("/browse/conversations", s.handleBrowseConversations).Methods("GET")
	r.HandleFunc("/browse/conversations/{id}", s.handleBrowseConversation).Methods("GET")
	r.HandleFunc("/messages/all", s.handleAllMessages).Methods("GET")
}
