package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"captain-dispatch/internal/apperr"
	"captain-dispatch/internal/domain"
)

type template struct {
	title    string
	message  string
	category domain.NotificationCategory
	icon     string
	priority domain.NotificationPriority
}

// Keys are the English formats; arguments are positional.
var templates = map[EventType]template{
	EventOrderCreated: {
		title:    "Order received",
		message:  "Your order %[1]s has been received.",
		category: domain.CategoryOrder,
		icon:     "package",
		priority: domain.NotifyNormal,
	},
	EventOrderStatusChanged: {
		title:    "Order %[1]s updated",
		message:  "Order %[1]s is now %[2]s.",
		category: domain.CategoryDelivery,
		icon:     "truck",
		priority: domain.NotifyNormal,
	},
	EventPrintJobCompleted: {
		title:    "Printing complete",
		message:  "Printing for order %[1]s is complete.",
		category: domain.CategoryPrint,
		icon:     "printer",
		priority: domain.NotifyNormal,
	},
	EventDriverUpdate: {
		title:    "Delivery update",
		message:  "%[1]s: %[2]s",
		category: domain.CategoryDelivery,
		icon:     "motorcycle",
		priority: domain.NotifyHigh,
	},
	EventReviewReceived: {
		title:    "New review",
		message:  "Order %[1]s received a %[2]d-star review.",
		category: domain.CategoryReview,
		icon:     "star",
		priority: domain.NotifyLow,
	},
	EventSystemAlert: {
		category: domain.CategorySystem,
		icon:     "alert",
		priority: domain.NotifyHigh,
	},
}

var statusLabels = map[domain.OrderStatus]string{
	domain.OrderNew:       "received",
	domain.OrderReady:     "ready for pickup",
	domain.OrderAssigned:  "assigned to a captain",
	domain.OrderPickedUp:  "picked up",
	domain.OrderInTransit: "on the way",
	domain.OrderDelivered: "delivered",
	domain.OrderCancelled: "cancelled",
}

var arabic = map[string]string{
	"Order received":                            "تم استلام الطلب",
	"Your order %[1]s has been received.":       "تم استلام طلبك %[1]s.",
	"Order %[1]s updated":                       "تحديث الطلب %[1]s",
	"Order %[1]s is now %[2]s.":                 "حالة الطلب %[1]s الآن: %[2]s.",
	"Printing complete":                         "اكتملت الطباعة",
	"Printing for order %[1]s is complete.":     "اكتملت طباعة الطلب %[1]s.",
	"Delivery update":                           "تحديث التوصيل",
	"%[1]s: %[2]s":                              "%[1]s: %[2]s",
	"New review":                                "تقييم جديد",
	"Order %[1]s received a %[2]d-star review.": "حصل الطلب %[1]s على تقييم %[2]d نجوم.",
	"received":                                  "مستلم",
	"ready for pickup":                          "جاهز للاستلام",
	"assigned to a captain":                     "مسند إلى كابتن",
	"picked up":                                 "تم الاستلام",
	"on the way":                                "في الطريق",
	"delivered":                                 "تم التوصيل",
	"cancelled":                                 "ملغي",
	"Captain":                                   "الكابتن",
}

// Rendered is the localized content of an event.
type Rendered struct {
	Title    string
	Message  string
	Icon     string
	Category domain.NotificationCategory
	Priority domain.NotificationPriority
}

// Templates renders events in a fixed language.
type Templates struct {
	printer *message.Printer
	tag     language.Tag
}

var supported = []language.Tag{language.English, language.Arabic}

// NewTemplates builds the catalog and picks the closest supported language
// for lang ("en", "ar", "ar-EG", ...).
func NewTemplates(lang string) (*Templates, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, t := range templates {
		for _, key := range []string{t.title, t.message} {
			if key == "" {
				continue
			}
			if err := b.SetString(language.English, key, key); err != nil {
				return nil, fmt.Errorf("catalog en %q: %w", key, err)
			}
		}
	}
	for _, label := range statusLabels {
		if err := b.SetString(language.English, label, label); err != nil {
			return nil, fmt.Errorf("catalog en %q: %w", label, err)
		}
	}
	if err := b.SetString(language.English, "Captain", "Captain"); err != nil {
		return nil, fmt.Errorf("catalog en: %w", err)
	}
	for key, msg := range arabic {
		if err := b.SetString(language.Arabic, key, msg); err != nil {
			return nil, fmt.Errorf("catalog ar %q: %w", key, err)
		}
	}

	tag := language.English
	if strings.TrimSpace(lang) != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("parse language %q: %w", lang, err)
		}
		_, idx, _ := language.NewMatcher(supported).Match(parsed)
		tag = supported[idx]
	}
	return &Templates{printer: message.NewPrinter(tag, message.Catalog(b)), tag: tag}, nil
}

// Language returns the language templates are rendered in.
func (t *Templates) Language() language.Tag { return t.tag }

// Render produces the title and message of ev. The same event always renders
// to the same text.
func (t *Templates) Render(ev Event) (Rendered, error) {
	tpl, ok := templates[ev.Type]
	if !ok {
		return Rendered{}, apperr.Invalid(fmt.Sprintf("unknown event type %q", ev.Type))
	}
	out := Rendered{
		Icon:     tpl.icon,
		Category: tpl.category,
		Priority: tpl.priority,
	}
	if ev.Priority != "" {
		if !ev.Priority.Valid() {
			return Rendered{}, apperr.Invalid(fmt.Sprintf("unknown priority %q", ev.Priority))
		}
		out.Priority = ev.Priority
	}

	p := ev.Params
	switch ev.Type {
	case EventOrderCreated, EventPrintJobCompleted:
		if p.OrderNumber == "" {
			return Rendered{}, apperr.Invalid("order number is required")
		}
		out.Title = t.printer.Sprintf(tpl.title)
		out.Message = t.printer.Sprintf(tpl.message, p.OrderNumber)
	case EventOrderStatusChanged:
		label, ok := statusLabels[p.Status]
		if p.OrderNumber == "" || !ok {
			return Rendered{}, apperr.Invalid("order number and status are required")
		}
		out.Title = t.printer.Sprintf(tpl.title, p.OrderNumber)
		out.Message = t.printer.Sprintf(tpl.message, p.OrderNumber, t.printer.Sprintf(label))
	case EventDriverUpdate:
		if strings.TrimSpace(p.Message) == "" {
			return Rendered{}, apperr.Invalid("message is required")
		}
		name := p.CaptainName
		if name == "" {
			name = t.printer.Sprintf("Captain")
		}
		out.Title = t.printer.Sprintf(tpl.title)
		out.Message = t.printer.Sprintf(tpl.message, name, p.Message)
	case EventReviewReceived:
		if p.OrderNumber == "" || p.Rating < 1 || p.Rating > 5 {
			return Rendered{}, apperr.Invalid("order number and a 1-5 rating are required")
		}
		out.Title = t.printer.Sprintf(tpl.title)
		out.Message = t.printer.Sprintf(tpl.message, p.OrderNumber, p.Rating)
	case EventSystemAlert:
		if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Message) == "" {
			return Rendered{}, apperr.Invalid("title and message are required")
		}
		out.Title = p.Title
		out.Message = p.Message
	}
	return out, nil
}
