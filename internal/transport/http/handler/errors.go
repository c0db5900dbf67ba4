package handler

const (
	errInternalServer  = "Internal server error"
	errJobNotFound     = "Job not found"
	errInvalidJobID    = "Job id must be a UUID"
	errInvalidAnimeID  = "Anime id must be a positive integer"
	errInvalidStatus   = "Unknown job status"
	errInvalidPriority = "Priority must be between 1 and 100"
	errInvalidDays     = "older_than_days must be a positive integer"
)
