// Package environment names the deployment environment an application runs
// in and carries it through context.Context.
//
//	env, err := environment.Parse(os.Getenv("APP_ENV")) // "prod" -> Production
//	ctx = environment.WithContext(ctx, env)
//
//	if environment.IsProduction(ctx) {
//	    // stricter defaults
//	}
//
// LoggerExtractor adds the environment to every log record when registered
// with logger.WithContextExtractors.
package environment
