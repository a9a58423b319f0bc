package conversation

import (
	"context"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/database"
	"feedbackhub/internal/email"
	"feedbackhub/internal/models"
)

// notifyAsync emails the project owner about a visitor reply. It never
// blocks or fails the append.
func (s *Service) notifyAsync(own database.ThreadOwnership, reply models.Reply) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		n, err := s.buildNotification(ctx, own, reply)
		if err == nil {
			err = s.notifier.SendReplyNotification(ctx, n)
		}
		if err != nil {
			err = apperr.Wrap(apperr.KindNotificationDelivery, err, "operator notification failed")
			s.logger.Error().Err(err).Str("thread_id", reply.ThreadID).Str("reply_id", reply.ID).Msg("Failed to notify operator")
		} else {
			s.logger.Debug().Str("thread_id", reply.ThreadID).Str("to", n.OwnerEmail).Msg("Operator notified")
		}

		if s.onDelivery != nil {
			s.onDelivery(n, err)
		}
	}()
}

func (s *Service) buildNotification(ctx context.Context, own database.ThreadOwnership, reply models.Reply) (email.ReplyNotification, error) {
	project, err := s.projects.GetByID(ctx, own.ProjectID)
	if err != nil {
		return email.ReplyNotification{ThreadID: reply.ThreadID}, err
	}
	thread, err := s.threads.GetThread(ctx, own.ThreadID)
	if err != nil {
		return email.ReplyNotification{ThreadID: reply.ThreadID}, err
	}
	return email.ReplyNotification{
		OwnerEmail:   project.OwnerEmail,
		ProjectName:  project.Name,
		ThreadID:     thread.ID,
		ThreadBody:   thread.Body,
		SenderEmail:  reply.AuthorLabel,
		ReplyBody:    reply.Body,
		DashboardURL: s.dashboardURL,
	}, nil
}
