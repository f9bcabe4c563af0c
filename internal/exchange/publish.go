package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/raphaelgruber/annobridge/internal/messages"
	"github.com/raphaelgruber/annobridge/internal/metrics"
	"github.com/raphaelgruber/annobridge/internal/models"
	"github.com/raphaelgruber/annobridge/internal/signature"
)

// resultsArchiveSuffix is the object key component under the job address.
const resultsArchiveSuffix = "results.zip"

// PublishInviteLink sends the signed invite-link notification for a freshly
// bootstrapped project. It is a no-op when the project has no job request
// artifact or no job-flow endpoint is configured.
func (s *Service) PublishInviteLink(ctx context.Context, slug string) error {
	if s.cfg.JobFlowURL == "" {
		s.log.Debug("no job flow endpoint configured, skipping invite notification", "project", slug)
		return nil
	}
	req, err := s.readJobRequestArtifact(slug)
	if errors.Is(err, ErrNoArtifact) {
		s.log.Debug("project has no job request artifact, skipping invite notification", "project", slug)
		return nil
	}
	if err != nil {
		return err
	}

	invite, err := s.invites.GetInvite(ctx, slug)
	if err != nil {
		return fmt.Errorf("read invite: %w", err)
	}

	msg := messages.InviteLinkNotification{
		NetworkID:  req.NetworkID,
		ExchangeID: s.cfg.ExchangeID,
		JobAddress: req.JobAddress,
		InviteLink: fmt.Sprintf("%s/join/%s", s.cfg.InviteBaseURL, invite.ID),
	}

	start := time.Now()
	if err := s.postSignedMessage(ctx, messages.InviteLinkEndpoint, msg); err != nil {
		s.stats.RecordFailure(metrics.OpNotification)
		return err
	}
	s.stats.RecordTiming(metrics.OpNotification, time.Since(start))

	s.log.Info("invite link published", "project", slug, "invite_link", msg.InviteLink)
	return nil
}

// PublishResults exports the project, uploads the archive to the bucket and
// sends the signed job-results notification. It is a no-op unless both the
// blob store and the job-flow endpoint are configured. The temporary export
// archive is deleted regardless of outcome.
func (s *Service) PublishResults(ctx context.Context, slug string, req *messages.JobRequest) error {
	if s.blob == nil || !s.blob.Configured() {
		s.log.Debug("no result bucket configured, skipping results publication", "project", slug)
		return nil
	}
	if s.cfg.JobFlowURL == "" {
		s.log.Debug("no job flow endpoint configured, skipping results publication", "project", slug)
		return nil
	}

	archive, err := s.buildExportArchive(ctx, slug)
	if err != nil {
		return fmt.Errorf("export project: %w", err)
	}
	defer os.Remove(archive)

	key := req.JobAddress + "/" + resultsArchiveSuffix

	start := time.Now()
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open export archive: %w", err)
	}
	err = s.blob.Upload(ctx, key, f)
	f.Close()
	if err != nil {
		s.stats.RecordFailure(metrics.OpResultUpload)
		return fmt.Errorf("upload results: %w", err)
	}
	s.stats.RecordTiming(metrics.OpResultUpload, time.Since(start))

	payouts, err := s.computePayouts(ctx, slug)
	if err != nil {
		return fmt.Errorf("compute payouts: %w", err)
	}

	msg := messages.JobResultSubmission{
		NetworkID:  req.NetworkID,
		ExchangeID: s.cfg.ExchangeID,
		JobAddress: req.JobAddress,
		JobData:    s.blob.ObjectURL(key),
		Payouts:    payouts,
	}

	start = time.Now()
	if err := s.postSignedMessage(ctx, messages.JobResultsEndpoint, msg); err != nil {
		s.stats.RecordFailure(metrics.OpNotification)
		return err
	}
	s.stats.RecordTiming(metrics.OpNotification, time.Since(start))

	s.log.Info("job results published", "project", slug, "job_data", msg.JobData, "payouts", len(payouts))
	return nil
}

// computePayouts lists every user with annotator permission and the names
// of the documents each has a finished annotation for. Payouts are computed
// on demand and never persisted.
func (s *Service) computePayouts(ctx context.Context, slug string) (messages.Payouts, error) {
	annotators, err := s.projects.ListUsersWithPermission(ctx, slug, models.PermissionAnnotator)
	if err != nil {
		return nil, fmt.Errorf("list annotators: %w", err)
	}

	docs, err := s.documents.ListSourceDocuments(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	finishedByUser := make(map[string][]string)
	for _, doc := range docs {
		anns, err := s.documents.ListFinishedAnnotations(ctx, slug, doc.Name)
		if err != nil {
			return nil, fmt.Errorf("list annotations for %q: %w", doc.Name, err)
		}
		for _, ann := range anns {
			finishedByUser[ann.Username] = append(finishedByUser[ann.Username], doc.Name)
		}
	}

	payouts := make(messages.Payouts, 0, len(annotators))
	for _, user := range annotators {
		wallet := user.UIName
		if wallet == "" {
			wallet = user.Username
		}
		taskIDs := finishedByUser[user.Username]
		sort.Strings(taskIDs)
		payouts = append(payouts, messages.PayoutItem{Wallet: wallet, TaskIDs: taskIDs})
	}
	sort.Slice(payouts, func(i, j int) bool { return payouts[i].Wallet < payouts[j].Wallet })

	return payouts, nil
}

// postSignedMessage serializes msg as pretty-printed JSON, signs those
// exact bytes with the exchange key and POSTs them to the job flow. Any
// non-200 response is a hard failure.
func (s *Service) postSignedMessage(ctx context.Context, endpoint string, msg any) error {
	body, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.JobFlowURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(messages.HeaderExchangeSignature, signature.Sign(s.cfg.ExchangeKey, body))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return nil
}
