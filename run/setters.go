package run

func SetStatus(status Status) UpdateSetter {
	return func(r *Run) error {
		if !status.IsValid() {
			return ErrInvalidStatus
		}
		r.Status = status
		return nil
	}
}

func SetSessionCount(count int) UpdateSetter {
	return func(r *Run) error {
		r.SessionCount = count
		return nil
	}
}

func SetSummaryPath(path string) UpdateSetter {
	return func(r *Run) error {
		r.SummaryPath = path
		return nil
	}
}

func SetLogPath(path string) UpdateSetter {
	return func(r *Run) error {
		r.LogPath = path
		return nil
	}
}

func SetMetadata(metadata JSONMap) UpdateSetter {
	return func(r *Run) error {
		r.Metadata = metadata
		return nil
	}
}

func SetCounts(success, fail int) UpdateSetter {
	return func(r *Run) error {
		if success < 0 || fail < 0 {
			return ErrInvalidCount
		}
		r.SuccessCount = success
		r.FailCount = fail
		return nil
	}
}
