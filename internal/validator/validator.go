package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/exam-portal/internal/model"
)

// tagOneOfOptions marks a correct answer that is not among the question's options.
const tagOneOfOptions = "oneof_options"

var (
	// trans is the singleton English translator for validation errors.
	trans     ut.Translator
	transOnce sync.Once

	// standalone validates documents that never pass through Gin binding.
	standalone     *govalidator.Validate
	standaloneOnce sync.Once
)

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		configure(v)
	}
}

func configure(v *govalidator.Validate) {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(questionRules, model.Question{})

	t := translator()
	_ = en_translations.RegisterDefaultTranslations(v, t)
	_ = v.RegisterTranslation(tagOneOfOptions, t,
		func(u ut.Translator) error {
			return u.Add(tagOneOfOptions, "{0} must be one of the question's options", true)
		},
		func(u ut.Translator, fe govalidator.FieldError) string {
			msg, _ := u.T(tagOneOfOptions, fe.Field())
			return msg
		},
	)
}

// translator returns the shared English translator. Both the Gin engine and
// the standalone validator register their messages on it.
func translator() ut.Translator {
	transOnce.Do(func() {
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
	})
	return trans
}

func questionRules(sl govalidator.StructLevel) {
	q := sl.Current().Interface().(model.Question)
	if q.CorrectAnswer != "" && !q.HasOption(q.CorrectAnswer) {
		sl.ReportError(q.CorrectAnswer, "correctAnswer", "CorrectAnswer", tagOneOfOptions, "")
	}
}

func engine() *govalidator.Validate {
	standaloneOnce.Do(func() {
		standalone = govalidator.New(govalidator.WithRequiredStructEnabled())
		configure(standalone)
	})
	return standalone
}

// TranslateErrors takes a binding/validation error and returns a map of
// field path → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fieldPath(fe)] = fe.Translate(translator())
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// fieldPath drops the root struct name from the namespace,
// e.g. "questions[2].correctAnswer".
func fieldPath(fe govalidator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// BindURI binds and validates the path parameters into dst.
// Returns nil on success or a translated field error map on failure.
func BindURI(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindUri(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// Struct validates v outside of a request.
// Returns nil on success or a translated field error map on failure.
func Struct(v interface{}) map[string]string {
	if err := engine().Struct(v); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// Exam validates an exam definition: positive timer, at least one question,
// four options per question and a correct answer taken from the options.
func Exam(exam *model.ExamDefinition) map[string]string {
	return Struct(exam)
}
