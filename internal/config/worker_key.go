package config

type WorkerKeyStruct struct {
	PendingResultsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PendingResultsQueue: "pending_results_queue",
}
