package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"catalog-import-service/internal/metrics"
	"catalog-import-service/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var ErrInvalidRequest = errors.New("missing required fields")

var messageTemplates = template.Must(template.New("contact").Parse(`<h2>{{.Title}}</h2>
<p><strong>Номер обращения:</strong> {{.Number}}</p>
<p><strong>Имя:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Телефон:</strong> {{.Phone}}</p>
<p><strong>Сообщение:</strong></p>
<p>{{.Message}}</p>
<p><em>Отправлено: {{.SentAt}}</em></p>
`))

func init() {
	template.Must(messageTemplates.New("vin").Parse(`<h2>{{.Title}}</h2>
<p><strong>Номер запроса:</strong> {{.Number}}</p>
<p><strong>Имя:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Телефон:</strong> {{.Phone}}</p>
<p><strong>VIN:</strong> {{.VIN}}</p>
{{if .Details}}<p><strong>Дополнительная информация:</strong></p>
<p>{{.Details}}</p>
{{end}}<p><em>Отправлено: {{.SentAt}}</em></p>
`))
	template.Must(messageTemplates.New("import").Parse(`<h2>{{.Title}}</h2>
<p><strong>Файл:</strong> {{.Job.Filename}}</p>
<p><strong>Статус:</strong> {{.Job.Status}}</p>
<ul>
<li>Всего строк: {{.Job.TotalRows}}</li>
<li>Успешно: {{.Job.SuccessCount}} (создано {{.Job.CreatedCount}}, обновлено {{.Job.UpdatedCount}})</li>
<li>С ошибками: {{.Job.FailedCount}}</li>
</ul>
{{if .Errors}}<table border="1" cellpadding="4">
<tr><th>Строка</th><th>Колонка</th><th>Код</th><th>Сообщение</th></tr>
{{range .Errors}}<tr><td>{{.Row}}</td><td>{{.Column}}</td><td>{{.Code}}</td><td>{{.Message}}</td></tr>
{{end}}</table>
{{if .Truncated}}<p>… и ещё {{.Truncated}}</p>
{{end}}{{end}}<p><em>Отправлено: {{.SentAt}}</em></p>
`))
}

// errors listed in an import report before it is truncated
const maxReportErrors = 50

const sentAtLayout = "02.01.2006, 15:04:05"

type Config struct {
	ContactTo []string // MAIL_TO
	ReportsTo []string // IMPORT_REPORTS_TO
}

// Service sends the numbered contact and VIN e-mails and import reports.
type Service struct {
	mailer   Mailer
	counter  Counter
	validate *validator.Validate
	cfg      Config
	logger   *logrus.Entry
	now      func() time.Time
}

func NewService(mailer Mailer, counter Counter, cfg Config, logger *logrus.Logger) *Service {
	return &Service{
		mailer:   mailer,
		counter:  counter,
		validate: validator.New(),
		cfg:      cfg,
		logger:   logger.WithField("component", "notify"),
		now:      time.Now,
	}
}

// SplitAddresses parses a comma separated recipient list.
func SplitAddresses(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// SendContactForm validates the request and sends it as message #N.
func (s *Service) SendContactForm(ctx context.Context, req models.ContactFormRequest) (int64, error) {
	if err := s.validate.Struct(req); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.sendNumbered(ctx, models.EmailTypeContactForm, "contact", "Новое сообщение с формы контактов #%d", func(title string, n int64) interface{} {
		return struct {
			models.ContactFormRequest
			Title  string
			Number int64
			SentAt string
		}{req, title, n, s.now().Format(sentAtLayout)}
	})
}

// SendVinRequest validates the request and sends it as VIN request #N.
func (s *Service) SendVinRequest(ctx context.Context, req models.VinRequest) (int64, error) {
	if err := s.validate.Struct(req); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.sendNumbered(ctx, models.EmailTypeVinRequest, "vin", "Новый запрос по VIN #%d", func(title string, n int64) interface{} {
		return struct {
			models.VinRequest
			Title  string
			Number int64
			SentAt string
		}{req, title, n, s.now().Format(sentAtLayout)}
	})
}

// The counter only advances after the message was accepted by the server.
func (s *Service) sendNumbered(ctx context.Context, emailType models.EmailType, tmpl, subjectFormat string, data func(title string, n int64) interface{}) (int64, error) {
	number, err := s.counter.Peek(ctx, emailType)
	if err != nil {
		return 0, err
	}
	subject := fmt.Sprintf(subjectFormat, number)

	body, err := render(tmpl, data(subject, number))
	if err != nil {
		return 0, err
	}

	err = s.mailer.Send(ctx, Message{To: s.cfg.ContactTo, Subject: subject, HTML: body})
	metrics.RecordEmail(string(emailType), err)
	if err != nil {
		s.logger.WithError(err).WithField("type", emailType).Error("Failed to send e-mail")
		return 0, err
	}

	metric, err := s.counter.Commit(ctx, emailType)
	if err != nil {
		// message is out; a lost increment only repeats a number
		s.logger.WithError(err).WithField("type", emailType).Warn("Failed to update e-mail counter")
		return number, nil
	}

	s.logger.WithFields(logrus.Fields{"type": emailType, "number": metric.Count}).Info("E-mail sent")
	return number, nil
}

// SendImportReport mails a job summary. It is a no-op without recipients.
func (s *Service) SendImportReport(ctx context.Context, job *models.ImportJob) error {
	if len(s.cfg.ReportsTo) == 0 || job == nil {
		return nil
	}

	rowErrors := job.RowErrors()
	truncated := 0
	if len(rowErrors) > maxReportErrors {
		truncated = len(rowErrors) - maxReportErrors
		rowErrors = rowErrors[:maxReportErrors]
	}

	subject := fmt.Sprintf("Импорт каталога %s: %s", job.Filename, job.Status)
	body, err := render("import", struct {
		Title     string
		Job       *models.ImportJob
		Errors    []models.ImportRowError
		Truncated int
		SentAt    string
	}{subject, job, rowErrors, truncated, s.now().Format(sentAtLayout)})
	if err != nil {
		return err
	}

	err = s.mailer.Send(ctx, Message{To: s.cfg.ReportsTo, Subject: subject, HTML: body})
	metrics.RecordEmail(string(models.EmailTypeImportReport), err)
	return err
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := messageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s e-mail: %w", name, err)
	}
	return buf.String(), nil
}
