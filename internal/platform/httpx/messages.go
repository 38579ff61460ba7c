package httpx

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const msgInternal = "something went wrong, please try again"

// arabic holds translations keyed by the English message.
var arabic = map[string]string{
	msgInternal:               "حدث خطأ ما، يرجى المحاولة مرة أخرى",
	"Bad Request":             "طلب غير صالح",
	"Not Found":               "غير موجود",
	"Conflict":                "تعارض",
	"Forbidden":               "ممنوع",
	"Unauthorized":            "غير مصرح",
	"Bad Gateway":             "خطأ في الخدمة الخارجية",
	"Internal Server Error":   "خطأ داخلي في الخادم",
	"resource not found":      "المورد غير موجود",
	"duplicate entry":         "سجل مكرر",
	"validation failed":       "البيانات المدخلة غير صالحة",
	"business rule violated":  "العملية غير مسموحة",
	"forbidden":               "غير مسموح",
	"unauthorized":            "غير مصرح",
	"upstream service failed": "فشل الاتصال بالخدمة الخارجية",

	"is required":                "حقل مطلوب",
	"is invalid":                 "قيمة غير صالحة",
	"must be a positive integer": "يجب أن يكون رقماً صحيحاً موجباً",
	"must be greater than zero":  "يجب أن يكون أكبر من صفر",
	"must not be negative":       "يجب ألا يكون سالباً",
	"must be after start_time":   "يجب أن يكون بعد وقت البدء",
	"must be a valid date":       "يجب أن يكون تاريخاً صالحاً",

	"booking not found":                    "الحجز غير موجود",
	"hall not found":                       "القاعة غير موجودة",
	"customer not found":                   "العميل غير موجود",
	"invoice not found":                    "الفاتورة غير موجودة",
	"payment not found":                    "الدفعة غير موجودة",
	"amount must be greater than zero":     "يجب أن يكون المبلغ أكبر من صفر",
	"payment method is invalid":            "طريقة الدفع غير صالحة",
	"discount exceeds total amount":        "الخصم أكبر من المبلغ الإجمالي",
	"down payment exceeds final amount":    "العربون أكبر من المبلغ النهائي",
	"invalid booking status transition":    "لا يمكن تغيير حالة الحجز بهذا الشكل",
	"booking is closed for changes":        "لا يمكن تعديل هذا الحجز",
	"request was already processed":        "تمت معالجة هذا الطلب مسبقاً",
	"booking is fully invoiced":            "تم إصدار فواتير بكامل مبلغ الحجز",
	"amount exceeds the remaining balance": "المبلغ أكبر من الرصيد المتبقي",
	"invoice is already cancelled":         "الفاتورة ملغاة مسبقاً",
	"missing or invalid credentials":       "بيانات الدخول مفقودة أو غير صالحة",
	"parent invoice is not synced":         "الفاتورة المرتبطة غير مرحّلة",
	"accounting system request failed":     "فشل الطلب إلى النظام المحاسبي",
	"invoice already has a credit note":    "صدر إشعار دائن لهذه الفاتورة مسبقاً",
	"accounting system has no inventory":   "لا يوجد مستودع في النظام المحاسبي",
	"sync job not found":                   "مهمة الترحيل غير موجودة",

	"customer_id or customer details are required":                              "يجب تحديد العميل أو إدخال بياناته",
	"final amount is below the invoiced total":                                  "المبلغ النهائي أقل من إجمالي الفواتير الصادرة",
	"invoice does not belong to this booking":                                   "الفاتورة لا تخص هذا الحجز",
	"subscription expired; writes are disabled":                                 "انتهى الاشتراك، لا يمكن إجراء تعديلات",
	"cancelled or deleted records are not synced":                               "لا يتم ترحيل السجلات الملغاة أو المحذوفة",
	"no bank or cash account found in the accounting system":                    "لا يوجد حساب بنك أو صندوق في النظام المحاسبي",
	"accounting integration is not configured":                                  "الربط المحاسبي غير مفعّل",
	"invoice must be synced before issuing a credit note":                       "يجب ترحيل الفاتورة قبل إصدار إشعار دائن",
	"payment is synced with the accounting system":                              "الدفعة مرحّلة إلى النظام المحاسبي ولا يمكن حذفها",
	"invoice is synced with the accounting system; issue a credit note instead": "الفاتورة مرحّلة إلى النظام المحاسبي، يجب إصدار إشعار دائن بدلاً من حذفها",
}

var (
	messages = newCatalog()
	matcher  = language.NewMatcher([]language.Tag{language.English, language.Arabic})
)

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for en, ar := range arabic {
		_ = b.SetString(language.English, en, en)
		_ = b.SetString(language.Arabic, en, ar)
	}
	return b
}

// Printer returns a message printer for the request's preferred language.
func Printer(r *http.Request) *message.Printer {
	tag := language.English
	if r != nil {
		tag, _ = language.MatchStrings(matcher, r.Header.Get("Accept-Language"))
	}
	return message.NewPrinter(tag, message.Catalog(messages))
}

// Localize translates a message for the request's preferred language.
func Localize(r *http.Request, msg string) string {
	return Printer(r).Sprintf(msg)
}
